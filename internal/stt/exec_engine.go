package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ExecEngine runs an external command once per final result. The command
// receives `--audio <file.wav> --model <path> [--language <lang>]` and must
// print {"text": "...", "confidence": 0.0} on stdout.
type ExecEngine struct {
	cmd      []string
	language string
	timeout  time.Duration
}

func NewExecEngine(command, language string, timeout time.Duration) (*ExecEngine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &ExecEngine{cmd: args, language: language, timeout: timeout}, nil
}

func (e *ExecEngine) Name() string { return "exec" }

func (e *ExecEngine) SetLogLevel(int) {}

func (e *ExecEngine) LoadModel(path string) (NativeModel, error) {
	return &execModel{engine: e, path: path}, nil
}

type execModel struct {
	engine *ExecEngine
	path   string
}

func (m *execModel) NewRecognizer(sampleRate float64, opts Options) (NativeRecognizer, error) {
	return &execRecognizer{model: m, sampleRate: int(sampleRate), opts: opts}, nil
}

func (m *execModel) Free() {}

type execRecognizer struct {
	model      *execModel
	sampleRate int
	opts       Options
	pcm        []byte
}

func (r *execRecognizer) AcceptWaveform(pcm []byte) (bool, error) {
	r.pcm = append(r.pcm, pcm...)
	return false, nil
}

func (r *execRecognizer) Result() (string, error) {
	return sjson.Set("", "text", "")
}

func (r *execRecognizer) PartialResult() (string, error) {
	return sjson.Set("", "partial", "")
}

func (r *execRecognizer) FinalResult() (string, error) {
	pcm := r.pcm
	r.pcm = nil
	if len(pcm) == 0 {
		return sjson.Set("", "text", "")
	}

	ctx := context.Background()
	if r.model.engine.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.model.engine.timeout)
		defer cancel()
	}
	out, err := r.run(ctx, pcm)
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(out) {
		return "", fmt.Errorf("decode stt response: invalid json")
	}
	resp := gjson.ParseBytes(out)
	text := resp.Get("text").String()
	if r.opts.MaxAlternatives > 0 {
		doc, _ := sjson.Set(`{"alternatives":[{"confidence":0,"text":""}]}`, "alternatives.0.confidence", resp.Get("confidence").Float())
		return sjson.Set(doc, "alternatives.0.text", text)
	}
	return sjson.Set("", "text", text)
}

func (r *execRecognizer) run(ctx context.Context, pcm []byte) ([]byte, error) {
	file, err := os.CreateTemp(os.TempDir(), "loqa_stt_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writePCMToWav(file, pcm, r.sampleRate, 1); err != nil {
		return nil, err
	}

	e := r.model.engine
	cmdArgs := append([]string{}, e.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--audio", file.Name())
	if r.model.path != "" {
		cmdArgs = append(cmdArgs, "--model", r.model.path)
	}
	if e.language != "" {
		cmdArgs = append(cmdArgs, "--language", e.language)
	}

	command := exec.CommandContext(ctx, e.cmd[0], cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("stt command failed: %w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func (r *execRecognizer) Reset() { r.pcm = nil }

func (r *execRecognizer) Free() { r.pcm = nil }

func writePCMToWav(file *os.File, pcm []byte, sampleRate int, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate}, SourceBitDepth: 16}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
