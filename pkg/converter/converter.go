// Package converter implements pipeline.Converter by shelling out to an
// external kepubify-style binary, located (not bundled) on the host, the
// same way the reference implementation's KepubifyBinary resolves its tool:
// check PATH first, fall back to downloading the binary itself into a local
// cache directory, and remember the resolved location for later calls.
package converter

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

	"github.com/pkg/errors"

	"github.com/kobold-io/kobold/pkg/logging"
)

// formatsNeedingConversion are source formats the KepubConverter treats as
// requiring a derived, reader-specific artifact. Only epub is listed; kepub
// and every other format need no conversion.
var formatsNeedingConversion = map[string]bool{
	"epub": true,
}

// KepubConverter runs an external "kepubify"-named binary against a source
// file to produce a ".kepub.epub" sibling.
type KepubConverter struct {
	binDir     string
	downloadURL string
	httpClient *http.Client
	logger     *logging.Logger

	resolveOnce sync.Once
	resolveErr  error
	binaryPath  string

	mu sync.Mutex
}

// New constructs a KepubConverter. binDir is where a downloaded binary is
// cached if one isn't already on PATH; downloadURL is the release asset to
// fetch in that case.
func New(binDir, downloadURL string, logger *logging.Logger) *KepubConverter {
	return &KepubConverter{
		binDir:      binDir,
		downloadURL: downloadURL,
		httpClient:  &http.Client{},
		logger:      logger.Sublogger("converter"),
	}
}

// NeedsConversion implements pipeline.Converter.
func (c *KepubConverter) NeedsConversion(format string) bool {
	return formatsNeedingConversion[strings.ToLower(format)]
}

// Convert implements pipeline.Converter, invoking the resolved binary as
// `kepubify --output <dir> --calibre <path>` and returning the produced
// file's path.
func (c *KepubConverter) Convert(ctx context.Context, path string) (string, error) {
	bin, err := c.ensure(ctx)
	if err != nil {
		return "", errors.Wrap(err, "unable to resolve kepubify binary")
	}

	outputDir := filepath.Dir(path)
	cmd := exec.CommandContext(ctx, bin, "--output", outputDir, "--calibre", path)
	cmd.Dir = outputDir
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", errors.Wrapf(err, "kepubify failed: %s", strings.TrimSpace(string(output)))
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	derived := filepath.Join(outputDir, stem+".kepub.epub")
	if _, err := os.Stat(derived); err != nil {
		return "", errors.Wrap(err, "kepubify did not produce the expected output file")
	}
	return derived, nil
}

// ensure resolves the kepubify binary once per process: PATH first, then a
// cached download. Concurrent callers block on the same resolution.
func (c *KepubConverter) ensure(ctx context.Context) (string, error) {
	c.resolveOnce.Do(func() {
		c.binaryPath, c.resolveErr = c.resolve(ctx)
	})
	return c.binaryPath, c.resolveErr
}

func (c *KepubConverter) resolve(ctx context.Context) (string, error) {
	if path, err := exec.LookPath("kepubify"); err == nil {
		c.logger.Debugf("Found kepubify on PATH at %s", path)
		return path, nil
	}

	cached := filepath.Join(c.binDir, "kepubify")
	if info, err := os.Stat(cached); err == nil && info.Mode()&0o111 != 0 {
		return cached, nil
	}

	if c.downloadURL == "" {
		return "", errors.New("kepubify not found on PATH and no download URL configured")
	}

	c.logger.Infof("Downloading kepubify from %s", c.downloadURL)
	if err := c.download(ctx, cached); err != nil {
		return "", errors.Wrap(err, "cannot download kepubify")
	}
	return cached, nil
}

func (c *KepubConverter) download(ctx context.Context, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.downloadURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(c.binDir, 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}
