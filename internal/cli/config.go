// Package cli wires a cobra/viper command tree over pkg/sip, pkg/media
// and pkg/transport for the uacore reference binary.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/embeddedsip/uacore/pkg/codec"
)

// appConfig is the flattened view of sip.Config/media.Config/transport.Config
// that viper populates from flags, env vars and an optional config file.
type appConfig struct {
	Username      string
	Password      string
	Domain        string
	Registrar     string
	RegistrarPort int
	Expires       int
	BindAddr      string

	StunHost string
	StunPort int
	TurnHost string
	TurnPort int
	TurnUser string
	TurnPass string

	AudioPayload string
	AudioIn      string
	AudioOut     string

	LogLevel string
	LogFile  string
}

// bindConfigFlags registers the persistent flags shared by every
// subcommand and binds them into v, following firestige-Otus's
// pflag+viper root-command pairing.
func bindConfigFlags(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("config", "", "config file (YAML/JSON/TOML)")
	flags.String("username", "", "SIP account username")
	flags.String("password", "", "SIP account password")
	flags.String("domain", "", "SIP account domain")
	flags.String("registrar", "", "registrar host")
	flags.Int("registrar-port", 5060, "registrar port")
	flags.Int("expires", 3600, "REGISTER expiration, seconds")
	flags.String("bind-addr", "0.0.0.0", "local bind address (read into the config but not passed to the agent, which always binds 0.0.0.0)")

	flags.String("stun-host", "", "STUN server host")
	flags.Int("stun-port", 3478, "STUN server port")
	flags.String("turn-host", "", "TURN server host")
	flags.Int("turn-port", 3478, "TURN server port")
	flags.String("turn-user", "", "TURN username")
	flags.String("turn-pass", "", "TURN password")

	flags.String("audio-payload", "pcmu", "audio payload type: pcmu, pcma")
	flags.String("audio-in", "", "path to a raw PCM16LE file used as the capture source")
	flags.String("audio-out", "", "path to write received audio as raw PCM16LE")

	flags.String("log-level", "info", "debug, info, warn, error")
	flags.String("log-file", "", "rotate logs to this file instead of stderr")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("UACORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// loadConfig reads an optional config file (if --config was given) and
// unmarshals the bound keys into an appConfig.
func loadConfig(v *viper.Viper) (*appConfig, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &appConfig{
		Username:      v.GetString("username"),
		Password:      v.GetString("password"),
		Domain:        v.GetString("domain"),
		Registrar:     v.GetString("registrar"),
		RegistrarPort: v.GetInt("registrar-port"),
		Expires:       v.GetInt("expires"),
		BindAddr:      v.GetString("bind-addr"),

		StunHost: v.GetString("stun-host"),
		StunPort: v.GetInt("stun-port"),
		TurnHost: v.GetString("turn-host"),
		TurnPort: v.GetInt("turn-port"),
		TurnUser: v.GetString("turn-user"),
		TurnPass: v.GetString("turn-pass"),

		AudioPayload: v.GetString("audio-payload"),
		AudioIn:      v.GetString("audio-in"),
		AudioOut:     v.GetString("audio-out"),

		LogLevel: v.GetString("log-level"),
		LogFile:  v.GetString("log-file"),
	}

	if cfg.Registrar == "" {
		cfg.Registrar = cfg.Domain
	}
	return cfg, nil
}

func audioPayloadType(name string) (codec.PayloadType, error) {
	switch strings.ToLower(name) {
	case "pcmu", "":
		return codec.PCMU, nil
	case "pcma":
		return codec.PCMA, nil
	default:
		return 0, fmt.Errorf("unsupported audio payload %q", name)
	}
}
