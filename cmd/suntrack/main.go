package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"suntrack/config"
	"suntrack/internal/api"
	"suntrack/internal/fetch"
	"suntrack/internal/ipgeo"
	"suntrack/internal/location"
	"suntrack/internal/logging"
	"suntrack/internal/mqtt"
	"suntrack/internal/refresh"
	"suntrack/internal/sunrise"
	"suntrack/internal/tracker"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "suntrack",
		Short: "Sunrise/sunset and IP geolocation tracker",
		Long:  "Tracks sunrise and sunset for the current location and geolocates IP addresses on demand",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load .env: %w", err)
			}

			var err error
			cfg, err = config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			level := cfg.Log.Level
			if verbose {
				level = "debug"
			}
			logger, err = logging.New(os.Stderr, level, cfg.Log.Format)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sunCmd())
	rootCmd.AddCommand(ipCmd())
	rootCmd.AddCommand(locateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type clients struct {
	http     *fetch.Client
	sun      *sunrise.Client
	ipgeo    *ipgeo.Client
	geocoder *location.Nominatim
}

func newClients() clients {
	httpClient := fetch.NewClient(fetch.ClientConfig{
		Timeout:   cfg.HTTP.Timeout,
		UserAgent: cfg.HTTP.UserAgent,
	})
	return clients{
		http:     httpClient,
		sun:      sunrise.NewClient(cfg.Sun.BaseURL, httpClient),
		ipgeo:    ipgeo.NewClient(cfg.IPGeo.BaseURL, cfg.IPGeo.APIKey, httpClient),
		geocoder: location.NewNominatim(cfg.Geocoder.BaseURL, httpClient),
	}
}

func newLocator(c clients) (location.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Location.Provider)) {
	case "", "fixed":
		return location.NewFixed(location.Coordinate{
			Latitude:  cfg.Location.Latitude,
			Longitude: cfg.Location.Longitude,
		}, cfg.Location.Authorized), nil
	case "ipgeo", "ip":
		return ipgeo.NewLocator(c.ipgeo, cfg.HTTP.Timeout), nil
	default:
		return nil, fmt.Errorf("location provider not supported: %s", cfg.Location.Provider)
	}
}

func newTrackers(c clients, dispatcher tracker.Dispatcher) (*tracker.SunTracker, *tracker.IPTracker, error) {
	locator, err := newLocator(c)
	if err != nil {
		return nil, nil, err
	}

	sun := tracker.NewSunTracker(tracker.SunTrackerConfig{
		Locator:    locator,
		Geocoder:   c.geocoder,
		Sun:        c.sun,
		Dispatcher: dispatcher,
		Logger:     logger,
		Timeout:    cfg.HTTP.Timeout,
	})
	ip := tracker.NewIPTracker(tracker.IPTrackerConfig{
		Lookup:     c.ipgeo,
		Dispatcher: dispatcher,
		Logger:     logger,
		Timeout:    cfg.HTTP.Timeout,
	})
	return sun, ip, nil
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the tracking service",
		Long:  "Start both trackers, the HTTP API and the MQTT publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.IPGeo.APIKey == "" {
				logger.Warn("ipgeo.api_key is empty, IP lookups will fail (set SUNTRACK_IPGEO_API_KEY)")
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			loop := tracker.NewLoop(64)
			go loop.Run(ctx)

			sun, ip, err := newTrackers(newClients(), loop)
			if err != nil {
				return err
			}

			publisher, err := mqtt.NewPublisher(mqtt.PublisherConfig{
				Broker:      cfg.MQTT.Broker,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				Enabled:     cfg.MQTT.Enabled,
				Logger:      logger,
			})
			if err != nil {
				logger.Warn("MQTT connection failed", "error", err)
			} else {
				defer publisher.Close()
				if cfg.MQTT.Enabled {
					if err := publisher.PublishHomeAssistantDiscovery(); err != nil {
						logger.Warn("MQTT discovery failed", "error", err)
					}
				}
				// Observers run on the dispatch loop.
				defer sun.Subscribe(func(s tracker.SunState) {
					if err := publisher.PublishSun(s); err != nil {
						logger.Warn("MQTT publish failed", "tracker", "sun", "error", err)
					}
				})()
				defer ip.Subscribe(func(s tracker.IPState) {
					if err := publisher.PublishIP(s); err != nil {
						logger.Warn("MQTT publish failed", "tracker", "ip", "error", err)
					}
				})()
			}

			var server *api.Server
			if cfg.API.Enabled {
				server = api.NewServer(api.ServerConfig{
					Port:   cfg.API.Port,
					Sun:    sun,
					IP:     ip,
					Logger: logger,
				})

				go func() {
					if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("API server error", "error", err)
					}
				}()
			}

			refreshCtx, stopRefresh := context.WithCancel(ctx)
			defer stopRefresh()
			refreshDone := make(chan struct{})
			go func() {
				defer close(refreshDone)
				refresh.Run(refreshCtx, cfg.Sun.RefreshInterval, logger, sun.FetchData)
			}()

			sun.FetchData()

			logger.Info("suntrack started, press Ctrl+C to stop")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan
			logger.Info("shutting down")

			if server != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := server.Stop(shutdownCtx); err != nil {
					logger.Warn("API server shutdown", "error", err)
				}
			}
			stopRefresh()
			<-refreshDone
			sun.Wait()
			ip.Wait()
			cancel()

			return nil
		},
	}
}

func sunCmd() *cobra.Command {
	var lat, lng float64

	cmd := &cobra.Command{
		Use:   "sun",
		Short: "Fetch today's sunrise and sunset for a coordinate",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClients()

			ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.Timeout)
			defer cancel()

			data, err := c.sun.GetFull(ctx, location.Coordinate{Latitude: lat, Longitude: lng})
			if err != nil {
				return fmt.Errorf("failed to fetch sun times: %w", err)
			}
			return printJSON(data)
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude in decimal degrees")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude in decimal degrees")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lng")
	return cmd
}

func ipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ip <address>",
		Short: "Geolocate an IP address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClients()

			ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.Timeout)
			defer cancel()

			data, err := c.ipgeo.LookupFull(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to geolocate %s: %w", args[0], err)
			}
			return printJSON(data)
		},
	}
}

func locateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locate",
		Short: "Resolve the configured location once and print the sun tracker state",
		RunE: func(cmd *cobra.Command, args []string) error {
			sun, _, err := newTrackers(newClients(), tracker.Immediate)
			if err != nil {
				return err
			}

			sun.FetchData()
			sun.Wait()

			if err := sun.LastError(); err != nil {
				logger.Warn("last fetch failed", "error", err)
			}
			return printJSON(sun.Snapshot())
		},
	}
}
