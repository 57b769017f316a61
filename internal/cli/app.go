package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/embeddedsip/uacore/pkg/device"
	"github.com/embeddedsip/uacore/pkg/media"
	"github.com/embeddedsip/uacore/pkg/sip"
)

// app bundles one Agent plus the media template subcommands dial off of,
// wiring the flattened appConfig into the Config structs pkg/sip and
// pkg/media expect (spec §6).
type app struct {
	cfg   *appConfig
	log   zerolog.Logger
	agent *sip.Agent
	media media.Config
}

func newApp(cfg *appConfig, handler sip.Handler) (*app, error) {
	log := buildLogger(cfg)

	payload, err := audioPayloadType(cfg.AudioPayload)
	if err != nil {
		return nil, err
	}

	mediaCfg := media.Config{
		StunHost:   cfg.StunHost,
		StunPort:   cfg.StunPort,
		TurnHost:   cfg.TurnHost,
		TurnPort:   cfg.TurnPort,
		TurnUser:   cfg.TurnUser,
		TurnPass:   cfg.TurnPass,
		TrickleICE: true,
		EnableRTCP: true,
		Audio: media.AudioConfig{
			Enabled:     cfg.AudioIn != "" || cfg.AudioOut != "",
			PayloadType: payload,
			SampleRate:  8000,
			Channels:    1,
		},
		Log: log.With().Str("component", "media").Logger(),
	}

	if mediaCfg.Audio.Enabled {
		if cfg.AudioIn != "" {
			f, err := os.Open(cfg.AudioIn)
			if err != nil {
				return nil, fmt.Errorf("opening audio-in: %w", err)
			}
			mediaCfg.Audio.Capture = &device.ReaderCapture{R: f, BytesPerSample: 2}
		}
		if cfg.AudioOut != "" {
			f, err := os.Create(cfg.AudioOut)
			if err != nil {
				return nil, fmt.Errorf("creating audio-out: %w", err)
			}
			mediaCfg.Audio.Playback = &device.WriterPlayback{W: f}
		}
	}

	sipCfg := sip.Config{
		Username:        cfg.Username,
		Password:        cfg.Password,
		Domain:          cfg.Domain,
		RegistrarHost:   cfg.Registrar,
		RegistrarPort:   cfg.RegistrarPort,
		RegisterExpires: cfg.Expires,
		AutoRegister:    cfg.Registrar != "",
		Log:             log.With().Str("component", "sip").Logger(),
	}

	agent, err := sip.New(sipCfg, mediaCfg, handler)
	if err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}

	return &app{cfg: cfg, log: log, agent: agent, media: mediaCfg}, nil
}

// runLoop calls Agent.Loop on a fixed budget (spec §4.4's cooperative
// event-loop model) until ctx is cancelled, e.g. by SIGINT/SIGTERM.
func (a *app) runLoop(ctx context.Context) {
	const budget = 50 * time.Millisecond
	ticker := time.NewTicker(budget)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.agent.Loop(budget); err != nil {
				a.log.Error().Err(err).Msg("agent loop error")
			}
		}
	}
}

// interruptContext returns a context cancelled on SIGINT/SIGTERM, the way
// a long-running uacore subcommand stops without a daemon/socket layer.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
