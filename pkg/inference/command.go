package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"bodycomp/internal/models"
)

// CommandSliceEngine runs the 2D collaborator as an external command. The
// request is written as JSON to a temp file, the command is invoked with
// --request and --response paths appended, and the response JSON is read
// back. Mask pixels travel as base64-encoded row-major uint8 class ids.
type CommandSliceEngine struct {
	// Command is the collaborator command line, e.g.
	// "python -m bodycomp_worker slices"
	Command string

	// WorkDir is the working directory for the command; empty means
	// inherit
	WorkDir string
}

type sliceRequest struct {
	Model   string     `json:"model"`
	Device  int        `json:"device"`
	Workers int        `json:"workers"`
	Slices  []SliceRef `json:"slices"`
}

type sliceResponse struct {
	Results []struct {
		Path   string `json:"path"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Labels []byte `json:"labels"`
	} `json:"results"`
}

// Infer implements SliceEngine.
func (e *CommandSliceEngine) Infer(ctx context.Context, refs []SliceRef, device int, opts BatchOptions) ([]SliceResult, error) {
	req := sliceRequest{
		Model:   opts.Model,
		Device:  device,
		Workers: opts.Workers,
		Slices:  refs,
	}

	var resp sliceResponse
	if err := runCommand(ctx, e.Command, e.WorkDir, req, &resp); err != nil {
		return nil, err
	}

	results := make([]SliceResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if len(r.Labels) != r.Width*r.Height {
			return nil, fmt.Errorf("inference: mask for %s has %d labels, want %dx%d",
				r.Path, len(r.Labels), r.Width, r.Height)
		}
		results = append(results, SliceResult{
			Path: r.Path,
			Mask: &models.SegmentationMask{
				Labels: r.Labels,
				Width:  r.Width,
				Height: r.Height,
			},
		})
	}
	return results, nil
}

// CommandVolumeEngine runs the 3D spine collaborator as an external
// command, with the same request/response file protocol.
type CommandVolumeEngine struct {
	Command string
	WorkDir string
}

type volumeRequest struct {
	SeriesDir    string `json:"series_dir"`
	ArtifactPath string `json:"artifact_path"`
	Model        string `json:"model"`
}

type volumeResponse struct {
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	Depth            int    `json:"depth"`
	Labels           []byte `json:"labels"`
	RescaleSlope     string `json:"rescale_slope"`
	RescaleIntercept string `json:"rescale_intercept"`
}

// Segment implements VolumeEngine.
func (e *CommandVolumeEngine) Segment(ctx context.Context, seriesDir, artifactPath, model string) (*models.SegmentationVolume, VolumeMeta, error) {
	req := volumeRequest{SeriesDir: seriesDir, ArtifactPath: artifactPath, Model: model}

	var resp volumeResponse
	if err := runCommand(ctx, e.Command, e.WorkDir, req, &resp); err != nil {
		return nil, VolumeMeta{}, err
	}

	if len(resp.Labels) != resp.Width*resp.Height*resp.Depth {
		return nil, VolumeMeta{}, fmt.Errorf("inference: volume for %s has %d labels, want %dx%dx%d",
			seriesDir, len(resp.Labels), resp.Width, resp.Height, resp.Depth)
	}

	vol := &models.SegmentationVolume{
		Labels: resp.Labels,
		Width:  resp.Width,
		Height: resp.Height,
		Depth:  resp.Depth,
	}
	meta := VolumeMeta{
		RescaleSlope:     resp.RescaleSlope,
		RescaleIntercept: resp.RescaleIntercept,
	}
	return vol, meta, nil
}

// runCommand executes one collaborator invocation with the JSON file
// protocol.
func runCommand(ctx context.Context, command, workDir string, req, resp any) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("inference: no collaborator command configured")
	}

	dir, err := os.MkdirTemp("", "bodycomp-inference-*")
	if err != nil {
		return fmt.Errorf("inference: creating exchange directory: %w", err)
	}
	defer os.RemoveAll(dir)

	reqPath := filepath.Join(dir, "request.json")
	respPath := filepath.Join(dir, "response.json")

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("inference: encoding request: %w", err)
	}
	if err := os.WriteFile(reqPath, data, 0644); err != nil {
		return fmt.Errorf("inference: writing request: %w", err)
	}

	parts := strings.Fields(command)
	args := append(parts[1:], "--request", reqPath, "--response", respPath)
	cmd := exec.CommandContext(ctx, parts[0], args...)
	if workDir != "" {
		cmd.Dir = workDir
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("inference: collaborator %q failed: %w\n%s", parts[0], err, output)
	}

	data, err = os.ReadFile(respPath)
	if err != nil {
		return fmt.Errorf("inference: reading response: %w", err)
	}
	if err := json.Unmarshal(data, resp); err != nil {
		return fmt.Errorf("inference: parsing response: %w", err)
	}
	return nil
}
