package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hackgods/telecare/internal/call"
	"github.com/hackgods/telecare/internal/consult"
	"github.com/hackgods/telecare/internal/localmedia"
)

func joinCmd(a *app) *cobra.Command {
	var noCamera, noMic bool
	cmd := &cobra.Command{
		Use:   "join [consultation-id]",
		Short: "Open the live consultation page for an appointment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = url.Values{"consultationId": {args[0]}}.Encode()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			media := &localmedia.SyntheticSource{DenyVideo: noCamera, DenyAudio: noMic}
			gate := consult.NewGate(a.api, a.sessionFactory(media), a.logger)
			defer gate.Close()

			out := cmd.OutOrStdout()
			v := gate.Open(ctx, query)
			fmt.Fprintln(out, consult.Title(v))

			switch v := v.(type) {
			case consult.ManualEntry:
				fmt.Fprintln(out, v.Err)
				if v.BackRoute != "" {
					fmt.Fprintf(out, "Back: %s\n", v.BackRoute)
				}
				fmt.Fprintln(out, "Usage: consult join <consultation-id>")
			case consult.NotApproved:
				fmt.Fprintln(out, "Video calls open once the appointment is confirmed.")
				fmt.Fprintf(out, "Review requests: %s\n", v.ActionRoute)
			case consult.Live:
				return runCall(ctx, v.Session, cmd.InOrStdin(), out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCamera, "no-camera", false, "behave as if camera access was denied")
	cmd.Flags().BoolVar(&noMic, "no-mic", false, "behave as if microphone access was denied")
	return cmd
}

func (a *app) sessionFactory(media localmedia.Source) consult.SessionFactory {
	return func(id string) *call.Session {
		return call.NewSession(call.Config{
			ConsultationID:  id,
			Role:            a.role(),
			Media:           media,
			Dial:            call.SignalingDialer(a.cfg.SignalingURL, a.sess.Token()),
			NewPeer:         call.NewPionPeerFactory(a.cfg.STUNURLs),
			QualityInterval: a.cfg.QualitySampleInterval,
			ReconnectGrace:  a.cfg.ReconnectGrace,
			Logger:          a.logger,
		})
	}
}

// runCall prints state changes and reads m (mic), c (camera) and q (hang up)
// from in. A failed call stays on screen until q or ctx ends it.
func runCall(ctx context.Context, s *call.Session, in io.Reader, out io.Writer) error {
	printSnapshot(out, s.Snapshot())

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()

	updates := s.Updates()
	for {
		select {
		case <-ctx.Done():
			s.EndCall()
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			printSnapshot(out, snap)
			if snap.State == call.StateFailed && snap.LastError != nil {
				fmt.Fprintf(out, "call failed: %v\nq: leave the page\n", snap.LastError)
			}
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			switch line {
			case "m":
				if err := s.ToggleMic(); err != nil {
					fmt.Fprintln(out, err)
				}
			case "c":
				if err := s.ToggleCamera(); err != nil {
					fmt.Fprintln(out, err)
				}
			case "q":
				s.EndCall()
			case "":
			default:
				fmt.Fprintln(out, "m: toggle mic, c: toggle camera, q: end call")
			}
		}
	}
}

func printSnapshot(out io.Writer, s call.Snapshot) {
	fmt.Fprintf(out, "state=%s connected=%t quality=%s mic=%t camera=%t",
		s.State, s.IsConnected, s.Quality, s.IsMicEnabled, s.IsCameraEnabled)
	if s.RemoteStream != nil {
		fmt.Fprintf(out, " remote=%s", strings.Join(s.RemoteStream.Kinds, "+"))
	}
	fmt.Fprintln(out)

	if s.PermissionError != "" {
		fmt.Fprintln(out, s.PermissionError)
		if s.State == call.StateFailed {
			for i, step := range call.PermissionRemediation() {
				fmt.Fprintf(out, "  %d. %s\n", i+1, step)
			}
		}
	}
}
