package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/sleepstars/nimbridge/internal/logger"
	"github.com/sleepstars/nimbridge/internal/mocknim"
)

var flags struct {
	port        int
	reasoning   string
	content     string
	failStatus  int
	failMessage string
	delay       time.Duration
}

var rootCmd = &cobra.Command{
	Use:   "mockserver",
	Short: "Serve a fake NIM upstream for local testing",
	Long: `mockserver answers POST /v1/chat/completions like a NIM endpoint that
returns reasoning in reasoning_content, both buffered and streamed.

Point nimbridge at it with NIM_API_BASE=http://localhost:8001/v1.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.GetLogger().WithComponent("mockserver")
		gin.SetMode(gin.ReleaseMode)

		opts := mocknim.DefaultOptions()
		if flags.reasoning != "" {
			opts.Reasoning = flags.reasoning
		}
		if flags.content != "" {
			opts.Content = flags.content
		}
		opts.FailStatus = flags.failStatus
		opts.FailMessage = flags.failMessage
		opts.ChunkDelay = flags.delay

		addr := fmt.Sprintf(":%d", flags.port)
		log.Info("Mock upstream listening on %s", addr)
		return http.ListenAndServe(addr, mocknim.NewHandler(opts))
	},
}

func init() {
	rootCmd.Flags().IntVarP(&flags.port, "port", "p", 8001, "port to run the server on")
	rootCmd.Flags().StringVar(&flags.reasoning, "reasoning", "", "reasoning text to return")
	rootCmd.Flags().StringVar(&flags.content, "content", "", "answer text to return")
	rootCmd.Flags().IntVar(&flags.failStatus, "fail-status", 0, "fail every request with this HTTP status")
	rootCmd.Flags().StringVar(&flags.failMessage, "fail-message", "mock failure", "error message used with --fail-status")
	rootCmd.Flags().DurationVar(&flags.delay, "delay", 50*time.Millisecond, "delay between streamed chunks")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
