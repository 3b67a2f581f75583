package shutdown

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func CreateGracefulShutdownChannel() chan os.Signal {
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGTERM, syscall.SIGINT)
	return gracefulShutdown
}

// ListenForShutdown blocks until a shutdown signal arrives, fans it out to
// the provided done channel, runs the handler, then sleeps to let in-flight
// work drain before returning.
func ListenForShutdown(
	gracefulShutdown chan os.Signal,
	done chan bool,
	handler func(),
	timeout time.Duration,
	l *zap.Logger,
) {
	<-gracefulShutdown
	l.Sugar().Info("Received shutdown signal")

	handler()

	close(done)
	time.Sleep(timeout)
}
