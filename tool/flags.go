package tool

import (
	"flag"

	"github.com/foxdrive/foxdrive-go/types"
)

// SetFlags parses CLI flags and returns the override config.
func SetFlags() types.Config {
	var cfg types.Config
	flag.StringVar(&cfg.Log, "log", "", "log mode: dev|prod|none")
	flag.StringVar(&cfg.UseConfigPath, "useConfigPath", "", "override config file path")
	flag.IntVar(&cfg.UsePort, "usePort", 0, "override listen port")
	flag.StringVar(&cfg.UseUsersRoot, "useUsersRoot", "", "override users storage root")
	flag.StringVar(&cfg.UseCacheRoot, "useCacheRoot", "", "override streaming cache root")
	flag.StringVar(&cfg.UseFFmpegPath, "useFFmpegPath", "", "override ffmpeg binary path")
	flag.BoolVar(&cfg.UseSharedWrite, "useSharedWrite", false, "if true, share grants also permit writes")
	flag.Parse()
	return cfg
}
