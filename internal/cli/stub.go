package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/studiowebux/reviewload/internal/reviewstub"
	"go.uber.org/zap"
)

// StubOptions configures the local stub service
type StubOptions struct {
	Addr             string
	ReviewersPerPR   int
	OmitReviewerList bool
	Logger           *zap.Logger
	// Ready receives the bound address once the listener is up. Optional.
	Ready func(addr string)
}

// ServeStub runs the in-memory review-assignment stub until ctx is done or
// the process is interrupted
func ServeStub(ctx context.Context, opts StubOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	stub := reviewstub.NewServer(reviewstub.Options{
		ReviewersPerPR:   opts.ReviewersPerPR,
		OmitReviewerList: opts.OmitReviewerList,
		Logger:           logger,
	})

	listener, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", opts.Addr, err)
	}
	server := &http.Server{
		Handler:           stub.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	addr := listener.Addr().String()
	logger.Info("stub service listening",
		zap.String("addr", addr),
		zap.Bool("omit_reviewer_list", opts.OmitReviewerList))
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("stub shutdown: %w", err)
	}
	return nil
}
