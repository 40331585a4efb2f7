package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/framefit/passportcam/internal/log"
)

// DriveConfig configures the optional Google Drive mirror.
type DriveConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// TokenPath stores the OAuth token (default: ~/.passportcam/google_token.json).
	TokenPath string
	// FolderID is the Drive folder uploads land in. Empty means My Drive root.
	FolderID string
}

// DriveUploader mirrors archived photos into a Google Drive folder.
type DriveUploader struct {
	config    *oauth2.Config
	tokenPath string
	folderID  string

	mu      sync.RWMutex
	token   *oauth2.Token
	service *drive.Service
}

// NewDriveUploader creates the uploader and tries to resume a saved token.
func NewDriveUploader(cfg DriveConfig) (*DriveUploader, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("store: drive client id and secret are required")
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "http://localhost:8090/api/drive/callback"
	}
	if cfg.TokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		cfg.TokenPath = filepath.Join(homeDir, ".passportcam", "google_token.json")
	}

	u := &DriveUploader{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{drive.DriveFileScope},
			Endpoint:     google.Endpoint,
		},
		tokenPath: cfg.TokenPath,
		folderID:  cfg.FolderID,
	}

	if err := u.loadToken(); err == nil {
		if err := u.initService(); err != nil {
			u.mu.Lock()
			u.token = nil
			u.mu.Unlock()
		}
	}

	return u, nil
}

// IsAuthenticated reports whether uploads can proceed.
func (u *DriveUploader) IsAuthenticated() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.token != nil && u.token.Valid() && u.service != nil
}

// AuthURL returns the consent URL for the OAuth flow.
func (u *DriveUploader) AuthURL() string {
	return u.config.AuthCodeURL("passportcam", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// HandleCallback exchanges the authorization code and persists the token.
func (u *DriveUploader) HandleCallback(code string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	token, err := u.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("store: exchange auth code: %w", err)
	}

	u.mu.Lock()
	u.token = token
	u.mu.Unlock()

	if err := u.saveToken(); err != nil {
		log.Warn("failed to save drive token", "error", err)
	}
	return u.initService()
}

// Upload pushes one archived photo to Drive. Upload failures are the
// caller's to handle; the local archive stays authoritative.
func (u *DriveUploader) Upload(ctx context.Context, entry Entry, jpeg []byte) error {
	u.mu.RLock()
	service := u.service
	u.mu.RUnlock()

	if service == nil {
		return fmt.Errorf("store: drive not authenticated")
	}

	meta := &drive.File{
		Name:     entry.TakenAt.Format("20060102-150405") + "-" + entry.ID + ".jpg",
		MimeType: "image/jpeg",
	}
	if u.folderID != "" {
		meta.Parents = []string{u.folderID}
	}

	_, err := service.Files.Create(meta).
		Media(bytes.NewReader(jpeg)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("store: drive upload: %w", err)
	}

	log.Info("photo mirrored to drive", "id", entry.ID, "name", meta.Name)
	return nil
}

func (u *DriveUploader) initService() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.token == nil {
		return fmt.Errorf("store: no drive token")
	}

	ctx := context.Background()
	client := u.config.Client(ctx, u.token)

	service, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return fmt.Errorf("store: create drive service: %w", err)
	}
	u.service = service
	return nil
}

func (u *DriveUploader) loadToken() error {
	data, err := os.ReadFile(u.tokenPath)
	if err != nil {
		return err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}

	u.mu.Lock()
	u.token = &token
	u.mu.Unlock()
	return nil
}

func (u *DriveUploader) saveToken() error {
	u.mu.RLock()
	token := u.token
	u.mu.RUnlock()

	if token == nil {
		return fmt.Errorf("store: no drive token to save")
	}

	if err := os.MkdirAll(filepath.Dir(u.tokenPath), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(u.tokenPath, data, 0600)
}
