package ingest

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/aqib-ilyas/conflictlens/internal/httputil"
)

// Fetcher downloads the source files into the data directory before loading.
// HTTPS is tried first with retries; when a base URL is not configured or a
// download keeps failing, an anonymous FTP mirror is tried instead. Files
// already on disk are never re-fetched.
type Fetcher struct {
	client  *http.Client
	dataDir string
	baseURL string
	ftpHost string
	ftpDir  string
}

func NewFetcher(dataDir, baseURL, ftpHost, ftpDir string) *Fetcher {
	return &Fetcher{
		client:  httputil.NewClient(),
		dataDir: dataDir,
		baseURL: baseURL,
		ftpHost: ftpHost,
		ftpDir:  ftpDir,
	}
}

// FetchAll downloads any missing source files. Individual failures are
// logged and skipped; the loader falls back to synthetic data for whatever
// is still missing afterwards.
func (f *Fetcher) FetchAll() {
	if err := os.MkdirAll(f.dataDir, 0o755); err != nil {
		log.Printf("fetch: create data dir: %v", err)
		return
	}

	for _, name := range []string{ForecastsFile, CountriesFile, UncertaintyFile, CoordinatesFile} {
		path := filepath.Join(f.dataDir, name)
		if _, err := os.Stat(path); err == nil {
			log.Printf("fetch: %s already present, skipping", name)
			continue
		}
		if err := f.fetch(name, path); err != nil {
			log.Printf("fetch: %s: %v", name, err)
		}
	}
}

func (f *Fetcher) fetch(name, path string) error {
	if f.baseURL != "" {
		if err := f.fetchHTTP(name, path); err == nil {
			return nil
		} else if f.ftpHost == "" {
			return err
		} else {
			log.Printf("fetch: %s via https failed (%v), trying ftp", name, err)
		}
	}
	if f.ftpHost == "" {
		return fmt.Errorf("no fetch source configured")
	}
	return f.fetchFTP(name, path)
}

func (f *Fetcher) fetchHTTP(name, path string) error {
	url := f.baseURL + "/" + name

	operation := func() error {
		resp, err := f.client.Get(url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("%s: not found", url))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: status %d", url, resp.StatusCode)
		}
		return writeFile(path, resp.Body)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, bo); err != nil {
		return err
	}
	log.Printf("fetch: downloaded %s via https", name)
	return nil
}

func (f *Fetcher) fetchFTP(name, path string) error {
	conn, err := ftp.Dial(f.ftpHost, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return fmt.Errorf("ftp login: %w", err)
	}

	remote := name
	if f.ftpDir != "" {
		remote = f.ftpDir + "/" + name
	}
	resp, err := conn.Retr(remote)
	if err != nil {
		return fmt.Errorf("ftp retr %s: %w", remote, err)
	}
	defer resp.Close()

	if err := writeFile(path, resp); err != nil {
		return err
	}
	log.Printf("fetch: downloaded %s via ftp", name)
	return nil
}

// writeFile downloads to a temp file and renames, so a partial download
// never looks like a complete source file.
func writeFile(path string, r io.Reader) error {
	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
