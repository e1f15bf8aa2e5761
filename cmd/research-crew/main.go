package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/research-crew/pkg/client"
	"github.com/mikeboe/research-crew/pkg/research"
	"github.com/mikeboe/research-crew/pkg/stream"
)

var (
	serverURL  string
	topic      string
	guidelines string
	sections   string
	outputFile string
)

func main() {
	// Setup structured logging
	handler := slog.NewTextHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(handler))

	// Load .env file
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist, as long as env vars are set
	}

	rootCmd := &cobra.Command{
		Use:   "research-crew",
		Short: "A terminal client for the research crew server",
		Long:  `research-crew submits a multi-section research request to a server and streams section results back in real time until the final report is assembled.`,
		Run: func(cmd *cobra.Command, args []string) {
			topicFlagChanged := cmd.Flags().Changed("topic")

			if !topicFlagChanged {
				// Interactive Mode
				reader := bufio.NewReader(os.Stdin)

				fmt.Print("Enter research topic: ")
				input, _ := reader.ReadString('\n')
				topic = strings.TrimSpace(input)
				if topic == "" {
					slog.Error("Topic cannot be empty")
					os.Exit(1)
				}

				fmt.Print("Enter section titles (comma-separated): ")
				input, _ = reader.ReadString('\n')
				sections = strings.TrimSpace(input)
			} else if topic == "" {
				slog.Error("--topic flag provided but empty")
				os.Exit(1)
			}

			titles := research.ParseSections(sections)
			if len(titles) == 0 {
				slog.Error("At least one section title is required")
				os.Exit(1)
			}

			slog.Info("Starting research", "topic", topic, "sections", titles, "server", serverURL)

			c := client.New(serverURL)
			c.OnEvent = printEvent
			c.OnStateChange = func(s client.ConnState) {
				slog.Info("Connection state changed", "state", s.String())
			}

			state, err := c.Run(context.Background(), client.Request{
				Topic:      topic,
				Guidelines: guidelines,
				Sections:   titles,
			})
			if err != nil {
				slog.Error("Connection failed", "error", err)
				os.Exit(1)
			}
			if state.Err != "" {
				slog.Error("Research failed", "error", state.Err)
				os.Exit(1)
			}

			for title, reason := range state.Failures {
				slog.Warn("Section failed", "section", title, "reason", reason)
			}

			filename := outputFile
			if filename == "" {
				filename = fmt.Sprintf("report_%d.md", time.Now().Unix())
			}
			if err := os.WriteFile(filename, []byte(state.Report), 0644); err != nil {
				slog.Error("Failed to save report", "error", err)
				os.Exit(1)
			}
			slog.Info("Report saved", "filename", filename, "sections", len(state.Sections))
		},
	}

	rootCmd.Flags().StringVarP(&serverURL, "server", "u", "http://localhost:8081", "The research server base URL")
	rootCmd.Flags().StringVarP(&topic, "topic", "t", "", "The research topic")
	rootCmd.Flags().StringVarP(&guidelines, "guidelines", "g", "", "Research guidelines, tone and depth requirements")
	rootCmd.Flags().StringVarP(&sections, "sections", "s", "", "Comma-separated section titles")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Report output file (default report_<timestamp>.md)")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func printEvent(ev stream.Event) {
	switch ev.Type {
	case stream.EventStatus:
		slog.Info(ev.Message, "progress", int(ev.Progress))
	case stream.EventSectionStart:
		slog.Info("Section started", "section", ev.Section, "progress", int(ev.Progress))
	case stream.EventSectionComplete:
		slog.Info("Section completed", "section", ev.Section, "sources", len(ev.Sources), "progress", int(ev.Progress))
	case stream.EventSectionError:
		slog.Warn("Section failed", "section", ev.Section, "error", ev.Error)
	case stream.EventReportComplete:
		slog.Info("Report complete", "length", len(ev.Content))
	case stream.EventError:
		slog.Error("Research error", "message", ev.Message)
	}
}
