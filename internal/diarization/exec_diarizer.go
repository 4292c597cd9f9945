package diarization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/diascribe/diascribe/internal/config"
	"github.com/diascribe/diascribe/internal/transcript"
	"github.com/mattn/go-shellwords"
)

type execDiarizer struct {
	cmd []string
	cfg config.DiarizationConfig
}

type execOutput struct {
	Segments []struct {
		Speaker string  `json:"speaker"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
	} `json:"segments"`
}

// NewExecDiarizer runs an external diarization command. The command receives
// the audio path via --audio and prints {"segments": [...]} on stdout. Model
// gating credentials travel in config, never in process-wide state.
func NewExecDiarizer(cfg config.DiarizationConfig) (Diarizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse diarization command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("diarization command is empty")
	}
	return &execDiarizer{cmd: args, cfg: cfg}, nil
}

func (d *execDiarizer) Diarize(ctx context.Context, audioPath string) ([]transcript.SpeakerTurn, error) {
	args := append([]string{}, d.cmd...)
	base := args[0]
	cmdArgs := args[1:]
	cmdArgs = append(cmdArgs, "--audio", audioPath)
	if d.cfg.ModelPath != "" {
		cmdArgs = append(cmdArgs, "--model", d.cfg.ModelPath)
	}
	if d.cfg.AuthToken != "" {
		cmdArgs = append(cmdArgs, "--auth-token", d.cfg.AuthToken)
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("diarization command failed: %w: %s", err, stderr.String())
	}

	var resp execOutput
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode diarization response: %w", err)
	}
	turns := make([]transcript.SpeakerTurn, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		turns = append(turns, transcript.SpeakerTurn{Speaker: s.Speaker, Start: s.Start, End: s.End})
	}
	return turns, nil
}
