package booth

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/framefit/passportcam/internal/log"
	"github.com/framefit/passportcam/internal/store"
	"github.com/framefit/passportcam/pkg/compose"
	"github.com/framefit/passportcam/pkg/pipeline"
	"github.com/framefit/passportcam/pkg/pipeline/detect"
	"github.com/framefit/passportcam/pkg/source"
	"github.com/framefit/passportcam/pkg/validity"
	"github.com/framefit/passportcam/pkg/web"
)

// App owns the booth's components and their lifecycles.
type App struct {
	cfg Config

	src       pipeline.FrameSource
	faces     detect.FaceDetector
	segmenter detect.Segmenter
	pipe      *pipeline.Pipeline
	photos    *store.Store
	drive     *store.DriveUploader
	server    *web.Server
}

// New validates the configuration and returns an unstarted app.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{cfg: cfg}, nil
}

// Init opens the camera, loads the models, and wires the pipeline to the
// archive and the dashboard.
func (a *App) Init() error {
	var err error

	a.photos, err = store.Open(a.cfg.PhotosDir)
	if err != nil {
		return err
	}

	detCfg := detect.DefaultConfig()
	detCfg.ModelPath = a.cfg.FaceModelPath
	a.faces, err = detect.NewYuNet(detCfg)
	if err != nil {
		return fmt.Errorf("booth: load face model: %w", err)
	}

	if a.cfg.SegModelPath != "" {
		if _, statErr := os.Stat(a.cfg.SegModelPath); statErr == nil {
			segCfg := detect.DefaultSegmenterConfig()
			segCfg.ModelPath = a.cfg.SegModelPath
			a.segmenter, err = detect.NewSelfieSegmenter(segCfg)
			if err != nil {
				return fmt.Errorf("booth: load segmentation model: %w", err)
			}
		} else {
			log.Warn("segmentation model not found, background replacement disabled",
				"path", a.cfg.SegModelPath)
		}
	}

	finisher, err := compose.New(compose.DefaultConfig())
	if err != nil {
		return err
	}

	a.src, err = a.openSource()
	if err != nil {
		return err
	}

	thresholds, err := a.cfg.Thresholds()
	if err != nil {
		return err
	}

	pipeCfg := pipeline.DefaultConfig()
	pipeCfg.Thresholds = thresholds
	pipeCfg.BackgroundReplacement = a.cfg.Background && a.segmenter != nil

	a.pipe, err = pipeline.New(pipeCfg, pipeline.Deps{
		Source:    a.src,
		Faces:     a.faces,
		Quality:   detect.NewLaplacianScorer(),
		Segmenter: a.segmenter,
		Finisher:  finisher,
	})
	if err != nil {
		return err
	}

	if a.cfg.DriveClientID != "" && a.cfg.DriveClientSecret != "" {
		a.drive, err = store.NewDriveUploader(store.DriveConfig{
			ClientID:     a.cfg.DriveClientID,
			ClientSecret: a.cfg.DriveClientSecret,
			FolderID:     a.cfg.DriveFolderID,
		})
		if err != nil {
			return err
		}
	}

	webCfg := web.DefaultConfig()
	webCfg.Port = a.cfg.Port
	webCfg.StaticDir = a.cfg.StaticDir
	a.server = web.NewServer(webCfg, a.pipe, a.photos, a.drive)

	a.pipe.OnStatus(func(s validity.Status, valid bool) {
		a.server.PublishStatus(s, valid)
	})
	a.pipe.OnPreview(a.server.PublishPreview)
	a.pipe.OnCaptureFailed(a.server.PublishCaptureFailed)
	a.pipe.OnPhoto(a.handlePhoto)

	return nil
}

// handlePhoto archives a finished capture, announces it, and mirrors it to
// Drive when configured.
func (a *App) handlePhoto(p pipeline.Photo) {
	entry, err := a.photos.Save(p)
	if err != nil {
		log.Error("failed to archive photo", "id", p.ID, "error", err)
		return
	}
	a.server.PublishPhoto(entry)

	if a.drive != nil && a.drive.IsAuthenticated() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := a.drive.Upload(ctx, entry, p.JPEG); err != nil {
				log.Warn("drive upload failed", "id", p.ID, "error", err)
			}
		}()
	}
}

func (a *App) openSource() (pipeline.FrameSource, error) {
	switch a.cfg.Source {
	case SourceRemote:
		return source.DialRemote(source.DefaultRemoteConfig(a.cfg.SignallingURL))
	default:
		webcamCfg := source.DefaultWebcamConfig()
		webcamCfg.DeviceID = a.cfg.CameraDevice
		webcamCfg.Width = a.cfg.CameraWidth
		webcamCfg.Height = a.cfg.CameraHeight
		return source.OpenWebcam(webcamCfg)
	}
}

// Run starts the pipeline and serves the dashboard until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.pipe.Start(ctx); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- a.server.Start(ctx) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErr:
		return err
	}
}

// Shutdown stops the components in reverse dependency order.
func (a *App) Shutdown() {
	if a.server != nil {
		if err := a.server.Shutdown(); err != nil {
			log.Warn("server shutdown failed", "error", err)
		}
	}
	if a.pipe != nil {
		a.pipe.Stop()
	}
	if a.src != nil {
		a.src.Close()
	}
	if a.faces != nil {
		a.faces.Close()
	}
	if a.segmenter != nil {
		a.segmenter.Close()
	}
	log.Info("booth shut down")
}
