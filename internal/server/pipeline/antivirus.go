package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	execute "github.com/alexellis/go-execute/v2"
	"github.com/dmitrijs2005/classhub/internal/common"
	"github.com/dmitrijs2005/classhub/internal/filex"
	"github.com/dmitrijs2005/classhub/internal/logging"
	"github.com/google/uuid"
)

// clamscan exit codes: 0 clean, 1 infected, anything else is an error.
const clamscanExitInfected = 1

// Scanner runs an external antivirus binary against files with a bounded
// timeout. A positive match quarantines the file; a scanner error is a hard
// failure (fail-closed). When the binary is absent on the host the scanner
// degrades to a no-op, announced loudly at startup.
type Scanner struct {
	binPath       string
	quarantineDir string
	timeout       time.Duration
	logger        logging.Logger
}

// NewScanner probes for the scanner binary and constructs a Scanner. An
// unresolvable binary yields a degraded no-op scanner, not an error.
func NewScanner(binPath, quarantineDir string, timeout time.Duration, logger logging.Logger) *Scanner {
	resolved, err := exec.LookPath(binPath)
	if err != nil {
		logger.Warn(context.Background(),
			"antivirus scanner not found, running WITHOUT virus scanning",
			"binary", binPath, "error", err)
		resolved = ""
	}
	return &Scanner{
		binPath:       resolved,
		quarantineDir: quarantineDir,
		timeout:       timeout,
		logger:        logger,
	}
}

// Available reports whether a scanner binary was found.
func (s *Scanner) Available() bool {
	return s.binPath != ""
}

// Scan checks the file at path. On infection the file is moved to the
// quarantine directory and ErrThreatDetected is returned.
func (s *Scanner) Scan(ctx context.Context, path string) error {
	if s.binPath == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	task := execute.ExecTask{
		Command: s.binPath,
		Args:    []string{"--no-summary", path},
	}
	res, err := task.Execute(ctx)
	if err != nil {
		return fmt.Errorf("%w: scanner did not run: %v", common.ErrScanFailed, err)
	}

	switch res.ExitCode {
	case 0:
		return nil
	case clamscanExitInfected:
		s.quarantine(ctx, path)
		return fmt.Errorf("%w: %s", common.ErrThreatDetected, filepath.Base(path))
	default:
		return fmt.Errorf("%w: scanner exit code %d: %s", common.ErrScanFailed, res.ExitCode, res.Stderr)
	}
}

// quarantine relocates an infected file for forensic review. Best effort:
// the threat verdict stands even if the move fails.
func (s *Scanner) quarantine(ctx context.Context, path string) {
	dir, err := filex.EnsureDir(s.quarantineDir)
	if err != nil {
		s.logger.Warn(ctx, "quarantine dir unavailable", "path", path, "error", err)
		return
	}
	dst := filepath.Join(dir, uuid.NewString()+"_"+filepath.Base(path))
	if err := filex.Move(path, dst); err != nil {
		s.logger.Warn(ctx, "quarantine move failed", "path", path, "error", err)
		return
	}
	s.logger.Info(ctx, "infected file quarantined", "path", path, "quarantine", dst)
}
