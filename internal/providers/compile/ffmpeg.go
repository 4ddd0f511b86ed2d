package compile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clipforge/internal/domain"
)

// FFmpegCompiler stitches clips locally via ffmpeg's concat demuxer,
// implementing submit/poll through a background goroutine and an
// in-memory handle table, so the Orchestrator's poll loop is unaware
// whether compilation runs locally or against a remote vendor.
type FFmpegCompiler struct {
	workDir   string
	outputDir string
	binary    string
	logger    zerolog.Logger
}

type handleState struct {
	status Status
	url    string
	errMsg string
}

// handles backs the submit/poll handle table package-wide rather than
// per-instance: the Orchestrator never persists an adapter instance across
// calls (factory.go builds a fresh FFmpegCompiler per Submit/Poll), so a map
// on FFmpegCompiler itself would have Submit's background goroutine write
// into one instance and Poll read from another, empty one.
var (
	handlesMu sync.Mutex
	handles   = make(map[string]*handleState)
)

func NewFFmpegCompiler(workDir, outputDir, binary string, logger zerolog.Logger) *FFmpegCompiler {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegCompiler{
		workDir:   workDir,
		outputDir: outputDir,
		binary:    binary,
		logger:    logger,
	}
}

// EstimateCost returns 0: compilation runs against the local ffmpeg binary,
// with no external vendor to bill.
func (f *FFmpegCompiler) EstimateCost() float64 { return 0 }

func (f *FFmpegCompiler) Submit(ctx context.Context, orderedClipURLs []string, opts Options) (string, error) {
	if len(orderedClipURLs) == 0 {
		return "", &domain.ValidationError{Kind: domain.ValidationShape, Message: "no clips to compile"}
	}
	handle := uuid.NewString()
	handlesMu.Lock()
	handles[handle] = &handleState{status: StatusQueued}
	handlesMu.Unlock()

	clips := append([]string(nil), orderedClipURLs...)
	go f.run(handle, clips)
	return handle, nil
}

func (f *FFmpegCompiler) Poll(ctx context.Context, handle string) (*PollResult, error) {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	state, ok := handles[handle]
	if !ok {
		return &PollResult{Status: StatusFailed, Error: "unknown handle"}, nil
	}
	return &PollResult{Status: state.status, URL: state.url, Error: state.errMsg}, nil
}

func (f *FFmpegCompiler) run(handle string, clipURLs []string) {
	f.setStatus(handle, StatusRunning, "", "")

	jobDir := filepath.Join(f.workDir, handle)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		f.setStatus(handle, StatusFailed, "", fmt.Sprintf("create work dir: %v", err))
		return
	}
	defer os.RemoveAll(jobDir)

	localPaths := make([]string, 0, len(clipURLs))
	for i, clipURL := range clipURLs {
		localPath := filepath.Join(jobDir, fmt.Sprintf("clip_%03d.mp4", i))
		if err := fetchClip(clipURL, localPath); err != nil {
			f.setStatus(handle, StatusFailed, "", fmt.Sprintf("fetch clip %d: %v", i, err))
			return
		}
		localPaths = append(localPaths, localPath)
	}

	listPath := filepath.Join(jobDir, "concat_list.txt")
	if err := writeConcatList(listPath, localPaths); err != nil {
		f.setStatus(handle, StatusFailed, "", fmt.Sprintf("write concat list: %v", err))
		return
	}

	if err := os.MkdirAll(f.outputDir, 0755); err != nil {
		f.setStatus(handle, StatusFailed, "", fmt.Sprintf("create output dir: %v", err))
		return
	}
	outputPath := filepath.Join(f.outputDir, handle+".mp4")

	cmd := exec.Command(f.binary,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		"-y", outputPath,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		f.setStatus(handle, StatusFailed, "", fmt.Sprintf("ffmpeg concat failed: %v: %s", err, stderr.String()))
		return
	}

	f.setStatus(handle, StatusDone, "file://"+outputPath, "")
}

func (f *FFmpegCompiler) setStatus(handle string, status Status, url, errMsg string) {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	state, ok := handles[handle]
	if !ok {
		return
	}
	state.status = status
	state.url = url
	state.errMsg = errMsg
}

// fetchClip materializes a clip URL to a local path. "synthetic://" URLs
// (the deterministic ImageSynthesis/VideoSynthesis fallback scheme) are
// written as a small placeholder so the concat step still runs end to end
// without a real network fetch.
func fetchClip(clipURL, localPath string) error {
	if strings.HasPrefix(clipURL, "synthetic://") {
		return os.WriteFile(localPath, []byte("synthetic clip placeholder: "+clipURL), 0644)
	}
	if strings.HasPrefix(clipURL, "file://") {
		src := strings.TrimPrefix(clipURL, "file://")
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		return os.WriteFile(localPath, data, 0644)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Get(clipURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("clip fetch status %d", resp.StatusCode)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

func writeConcatList(listPath string, clipPaths []string) error {
	file, err := os.Create(listPath)
	if err != nil {
		return err
	}
	defer file.Close()
	for _, path := range clipPaths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(file, "file '%s'\n", abs); err != nil {
			return err
		}
	}
	return nil
}

var _ Compiler = (*FFmpegCompiler)(nil)
