// Package gsheet publishes run summaries as Google spreadsheets and
// resolves links to them in Google Drive.
package gsheet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ethpandaops/stressoor/pkg/config"
	"github.com/ethpandaops/stressoor/pkg/summary"
)

const (
	mimeFolder      = "application/vnd.google-apps.folder"
	mimeSpreadsheet = "application/vnd.google-apps.spreadsheet"

	folderURL      = "https://drive.google.com/drive/folders/"
	spreadsheetURL = "https://docs.google.com/spreadsheets/d/"

	lookupTimeout = 30 * time.Second
)

var scopes = []string{drive.DriveScope, sheets.SpreadsheetsScope}

// ErrNoRuns is returned when a summary is requested for an empty
// collection.
var ErrNoRuns = errors.New("no runs to publish")

// Client is an authenticated Drive and Sheets session. Path lookups are
// cached for the lifetime of the client.
type Client struct {
	log    logrus.FieldLogger
	drive  *drive.Service
	sheets *sheets.Service

	mu    sync.Mutex
	cache map[string]*drive.File
}

// New establishes a session from the configured service account key, or
// from application default credentials when none is configured.
func New(ctx context.Context, log logrus.FieldLogger, cfg config.SheetsConfig) (*Client, error) {
	var (
		ts  oauth2.TokenSource
		err error
	)

	if cfg.CredentialsFile != "" {
		data, rerr := os.ReadFile(cfg.CredentialsFile)
		if rerr != nil {
			return nil, fmt.Errorf("reading credentials: %w", rerr)
		}

		creds, cerr := google.CredentialsFromJSON(ctx, data, scopes...)
		if cerr != nil {
			return nil, fmt.Errorf("parsing credentials: %w", cerr)
		}

		ts = creds.TokenSource
	} else {
		ts, err = google.DefaultTokenSource(ctx, scopes...)
		if err != nil {
			return nil, fmt.Errorf("getting token source: %w", err)
		}
	}

	return newClient(ctx, log, option.WithTokenSource(ts))
}

func newClient(ctx context.Context, log logrus.FieldLogger, opts ...option.ClientOption) (*Client, error) {
	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}

	sheetsSvc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &Client{
		log:    log.WithField("component", "gsheet"),
		drive:  driveSvc,
		sheets: sheetsSvc,
		cache:  make(map[string]*drive.File, 64),
	}, nil
}

// Link returns the web location of a run's hosted document, or of the
// folder named by the path component holding key (e.g. "{host}"). It
// returns "" when nothing exists at that path.
func (c *Client) Link(tmpl string, run *summary.Run, key string) string {
	path := run.Expand(TruncatePath(tmpl, key))
	if path == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	f, err := c.lookup(ctx, path)
	if err != nil {
		c.log.WithError(err).WithField("path", path).Debug("Drive lookup failed")

		return ""
	}

	if f == nil {
		return ""
	}

	return fileURL(f)
}

func fileURL(f *drive.File) string {
	if f.MimeType == mimeFolder {
		return folderURL + f.Id
	}

	return spreadsheetURL + f.Id
}

// lookup resolves a slash separated path from the Drive root. A nil file
// with nil error means the path does not exist.
func (c *Client) lookup(ctx context.Context, path string) (*drive.File, error) {
	parent := "root"
	parts := splitPath(path)

	var (
		f   *drive.File
		err error
	)

	for i, name := range parts {
		prefix := strings.Join(parts[:i+1], "/")

		f, err = c.child(ctx, prefix, parent, name)
		if err != nil || f == nil {
			return nil, err
		}

		parent = f.Id
	}

	return f, nil
}

// child finds the named file directly under parent, caching by path.
func (c *Client) child(ctx context.Context, path, parent, name string) (*drive.File, error) {
	c.mu.Lock()
	f, ok := c.cache[path]
	c.mu.Unlock()

	if ok {
		return f, nil
	}

	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), escapeQuery(parent))

	list, err := c.drive.Files.List().
		Q(q).
		Fields("files(id, name, mimeType)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", path, err)
	}

	if len(list.Files) == 0 {
		return nil, nil
	}

	f = list.Files[0]

	c.mu.Lock()
	c.cache[path] = f
	c.mu.Unlock()

	return f, nil
}

// mkdirs resolves a folder path, creating any missing components.
func (c *Client) mkdirs(ctx context.Context, path string) (string, error) {
	parent := "root"
	parts := splitPath(path)

	for i, name := range parts {
		prefix := strings.Join(parts[:i+1], "/")

		f, err := c.child(ctx, prefix, parent, name)
		if err != nil {
			return "", err
		}

		if f == nil {
			f, err = c.drive.Files.Create(&drive.File{
				Name:     name,
				MimeType: mimeFolder,
				Parents:  []string{parent},
			}).Fields("id, name, mimeType").Context(ctx).Do()
			if err != nil {
				return "", fmt.Errorf("creating folder %q: %w", prefix, err)
			}

			c.mu.Lock()
			c.cache[prefix] = f
			c.mu.Unlock()
		}

		if f.MimeType != mimeFolder {
			return "", fmt.Errorf("%q exists and is not a folder", prefix)
		}

		parent = f.Id
	}

	return parent, nil
}

// forget drops a cached path.
func (c *Client) forget(path string) {
	c.mu.Lock()
	delete(c.cache, path)
	c.mu.Unlock()
}
