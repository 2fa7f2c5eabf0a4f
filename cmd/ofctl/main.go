// Package main is the ofctl CLI: send, receive, keygen, and serve
// subcommands over the offline-finding covert channel, following
// postalsys-Muti-Metroo's cobra root-plus-subcommands layout.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/oftrelay/covertchan/ofble"
	"github.com/oftrelay/covertchan/ofconfig"
	"github.com/oftrelay/covertchan/ofkey"
	"github.com/oftrelay/covertchan/oflog"
	"github.com/oftrelay/covertchan/ofweb"
	"github.com/oftrelay/covertchan/receiver"
	"github.com/oftrelay/covertchan/reports"
	"github.com/oftrelay/covertchan/sender"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ofctl",
		Short: "Offline-finding covert channel driver",
		Long: `ofctl drives a two-party covert channel that smuggles bytes
over a crowdsourced Bluetooth LE offline-finding relay network.`,
	}

	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(receiveCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func keygenCmd() *cobra.Command {
	var identityPath string
	var label string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a fresh identity keypair",
		Long:  "Generate a fresh P-224 identity, persist it, and print its SEC1-compressed public key for out-of-band exchange.",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ofconfig.LoadIdentityStore(identityPath)
			if err != nil {
				return err
			}
			created, err := store.GenerateIdentity(label)
			if err != nil {
				return err
			}
			if !created {
				fmt.Println("identity already exists; not overwriting")
			}
			if err := ofconfig.SaveIdentityStore(identityPath, store); err != nil {
				return err
			}

			sk, err := store.SecretKey()
			if err != nil {
				return err
			}
			pub := sk.PublicKey().ToSEC1Bytes()
			fmt.Printf("identity public key: %s\n", base64.StdEncoding.EncodeToString(pub[:]))
			return nil
		},
	}

	cmd.Flags().StringVarP(&identityPath, "identity", "i", "./identity.json", "Path to the identity store")
	cmd.Flags().StringVarP(&label, "label", "l", "default", "Label for the generated identity")

	return cmd
}

func sendCmd() *cobra.Command {
	var identityPath string
	var recipientB64 string
	var message string
	var adapterID string
	var slotsPerSecond int
	var burst int

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Transmit bytes to a recipient's identity public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ofconfig.LoadIdentityStore(identityPath)
			if err != nil {
				return err
			}
			sk, err := store.SecretKey()
			if err != nil {
				return fmt.Errorf("ofctl: no identity yet; run 'ofctl keygen' first: %w", err)
			}

			recipientRaw, err := base64.StdEncoding.DecodeString(recipientB64)
			if err != nil {
				return fmt.Errorf("ofctl: decode --recipient: %w", err)
			}
			recipient, err := ofkey.PublicKeyFromSEC1(recipientRaw)
			if err != nil {
				return fmt.Errorf("ofctl: parse --recipient: %w", err)
			}

			log := oflog.New(logrus.StandardLogger())
			registry := prometheus.NewRegistry()
			metrics := ofweb.NewMetrics(registry)
			s := sender.New(sk, sender.WithLogger(log), sender.WithMetrics(metrics))

			if err := ofble.EnableAdapter(adapterID); err != nil {
				log.Verbosef("ofctl: could not power adapter (continuing anyway): %v", err)
			}
			backend := ofble.New(ofble.WithAdapterID(adapterID), ofble.WithLogger(log))

			advertise := backend.Advertise
			if slotsPerSecond > 0 {
				pacer := sender.NewPacer(slotsPerSecond, burst)
				advertise = pacer.Wrap(advertise)
			}

			count, err := s.Transmit([]byte(message), recipient, advertise)
			fmt.Printf("advertised %d byte(s) (%d confirmed sent)\n",
				count, int(counterValue(registry, "covertchan_bytes_sent_total")))
			return err
		},
	}

	cmd.Flags().StringVarP(&identityPath, "identity", "i", "./identity.json", "Path to the identity store")
	cmd.Flags().StringVarP(&recipientB64, "recipient", "r", "", "Recipient identity public key (base64 SEC1)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Bytes to send")
	cmd.Flags().StringVar(&adapterID, "adapter", "hci0", "Local Bluetooth adapter")
	cmd.Flags().IntVar(&slotsPerSecond, "pace", 0, "Advertisement slots per second (0 disables pacing)")
	cmd.Flags().IntVar(&burst, "pace-burst", 0, "Extra advertisement slots available up front")
	_ = cmd.MarkFlagRequired("recipient")
	_ = cmd.MarkFlagRequired("message")

	return cmd
}

func receiveCmd() *cobra.Command {
	var identityPath string
	var senderB64 string
	var reportsEndpoint string
	var windowSize int

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Fetch and decode bytes sent by a sender's identity public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ofconfig.LoadIdentityStore(identityPath)
			if err != nil {
				return err
			}
			sk, err := store.SecretKey()
			if err != nil {
				return fmt.Errorf("ofctl: no identity yet; run 'ofctl keygen' first: %w", err)
			}

			senderRaw, err := base64.StdEncoding.DecodeString(senderB64)
			if err != nil {
				return fmt.Errorf("ofctl: decode --sender: %w", err)
			}
			senderPub, err := ofkey.PublicKeyFromSEC1(senderRaw)
			if err != nil {
				return fmt.Errorf("ofctl: parse --sender: %w", err)
			}

			log := oflog.New(logrus.StandardLogger())
			fetcher := reports.NewHTTPFetcher(reports.HTTPFetcherConfig{
				Endpoint:       reportsEndpoint,
				MaxElapsedTime: 30 * time.Second,
			}, log)

			registry := prometheus.NewRegistry()
			metrics := ofweb.NewMetrics(registry)

			opts := []receiver.Option{receiver.WithLogger(log), receiver.WithMetrics(metrics)}
			if windowSize > 0 {
				opts = append(opts, receiver.WithWindowSize(windowSize))
			}
			r := receiver.New(sk, opts...)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			data, err := r.Receive(ctx, senderPub, fetcher)
			if err != nil {
				return err
			}
			os.Stdout.Write(data)
			fmt.Fprintf(os.Stderr, "fetch windows: %d, disagreements: %d, gap-stops: %d\n",
				int(counterValue(registry, "covertchan_fetch_windows_processed_total")),
				int(counterValue(registry, "covertchan_majority_vote_disagreements_total")),
				int(counterValue(registry, "covertchan_gap_stops_total")))
			return nil
		},
	}

	cmd.Flags().StringVarP(&identityPath, "identity", "i", "./identity.json", "Path to the identity store")
	cmd.Flags().StringVarP(&senderB64, "sender", "s", "", "Sender identity public key (base64 SEC1)")
	cmd.Flags().StringVar(&reportsEndpoint, "reports-endpoint", "", "Reports service URL")
	cmd.Flags().IntVar(&windowSize, "window-size", 0, "Override the default fetch window size")
	_ = cmd.MarkFlagRequired("sender")
	_ = cmd.MarkFlagRequired("reports-endpoint")

	return cmd
}

// counterValue reads back a single counter's current value from reg,
// the way a driver program reports a one-shot run's own metrics
// without standing up an HTTP scrape endpoint for it.
func counterValue(reg *prometheus.Registry, name string) float64 {
	families, err := reg.Gather()
	if err != nil {
		return 0
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
		}
	}
	return 0
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the status/metrics web UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ofconfig.LoadSystemConfig(configPath)
			if err != nil {
				return err
			}

			log := oflog.New(logrus.StandardLogger())
			registry := prometheus.NewRegistry()
			ofweb.NewMetrics(registry)
			web := ofweb.NewServer(registry, nil, log)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			addr := fmt.Sprintf("%s:%d", cfg.WebHost, cfg.WebPort)
			fmt.Printf("serving status/metrics on %s\n", addr)
			return web.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to system config")

	return cmd
}
