package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"camgrid/internal/engine"
)

// CreateProbeCmd creates the probe command. It fetches a stream manifest
// once and reports what a session would see, useful when bringing up a new
// camera.
func CreateProbeCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "probe <url>",
		Short: "Fetch and inspect a stream manifest",
		Long:  `Fetches the given HLS manifest once, parses it, and prints the available renditions or the media playlist summary. No playback is started.`,
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			raw := args[0]
			base, err := url.Parse(raw)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: invalid url: %v\n", err)
				os.Exit(1)
			}

			client := &http.Client{Timeout: timeout}
			resp, err := client.Get(engine.CacheBust(raw))
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: fetch failed: %v\n", err)
				os.Exit(1)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				fmt.Fprintf(os.Stderr, "error: fetch failed: HTTP %d\n", resp.StatusCode)
				os.Exit(1)
			}

			master, media, err := engine.ParsePlaylist(base, resp.Body)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: parse failed: %v\n", err)
				os.Exit(1)
			}

			switch {
			case master != nil:
				fmt.Printf("master playlist: %d variants\n", len(master.Variants))
				for _, v := range master.Variants {
					size := "unknown"
					if v.Width > 0 && v.Height > 0 {
						size = fmt.Sprintf("%dx%d", v.Width, v.Height)
					}
					fmt.Printf("  %8d bps  %-10s %s\n", v.Bandwidth, size, v.URI)
				}
			case media != nil:
				kind := "live"
				if media.Ended {
					kind = "ended"
				}
				fmt.Printf("media playlist: %s, %d segments, target duration %.1fs, media sequence %d, %.1fs of media\n",
					kind, len(media.Segments), media.TargetDuration, media.MediaSequence, media.Duration())
			}
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "HTTP request timeout")
	return cmd
}
