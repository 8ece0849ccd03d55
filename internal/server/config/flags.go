package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/classhub/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address for metrics/health (e.g., ":8090")
//	-d string   PostgreSQL DSN
//	-r string   Redis address (host:port)
//	-f string   final storage root directory
//	-q string   quarantine directory
//	-w int      number of worker loops
//	-i int      reaper interval, minutes
//	-t int      processing timeout, minutes
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-r", "-f", "-q", "-w", "-i", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port for metrics/health endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.StorageDir, "f", config.StorageDir, "final storage root directory")
	fs.StringVar(&config.QuarantineDir, "q", config.QuarantineDir, "quarantine directory")
	fs.IntVar(&config.Workers, "w", config.Workers, "number of worker loops")

	reaperInterval := fs.Int("i", int(config.ReaperInterval.Minutes()), "reaper interval (in minutes)")
	processingTimeout := fs.Int("t", int(config.ProcessingTimeout.Minutes()), "processing timeout (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ReaperInterval = time.Duration(*reaperInterval) * time.Minute
	config.ProcessingTimeout = time.Duration(*processingTimeout) * time.Minute
}
