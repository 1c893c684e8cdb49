package handlers

import (
	"reelrender/internal/acquire"
	"reelrender/internal/delivery"
	"reelrender/internal/pkg/logger"
	"reelrender/internal/ports"
	"reelrender/internal/render"
	"reelrender/internal/settings"
)

type Deps struct {
	Render   *render.Service
	Fetcher  *acquire.Fetcher
	Delivery *delivery.Deliverer
	Settings *settings.Manager
	SP       ports.StorageProvider
	Log      *logger.Logger

	// AdminPassword empty disables the admin pages.
	AdminPassword  string
	MaxUploadBytes int64
	// PublicBaseURL overrides the origin used in url mode responses.
	PublicBaseURL string
	FFmpegPath    string
	Version       string
}

type Handler struct {
	render   *render.Service
	fetcher  *acquire.Fetcher
	delivery *delivery.Deliverer
	settings *settings.Manager
	sp       ports.StorageProvider
	log      *logger.Logger

	adminPassword  string
	maxUploadBytes int64
	publicBaseURL  string
	ffmpegPath     string
	version        string
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	ffmpegPath := d.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	version := d.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		render:         d.Render,
		fetcher:        d.Fetcher,
		delivery:       d.Delivery,
		settings:       d.Settings,
		sp:             d.SP,
		log:            log.WithComponent("http"),
		adminPassword:  d.AdminPassword,
		maxUploadBytes: d.MaxUploadBytes,
		publicBaseURL:  d.PublicBaseURL,
		ffmpegPath:     ffmpegPath,
		version:        version,
	}
}
