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

// ListenForShutdown blocks until a termination signal arrives, runs signalHandler,
// then waits up to timeToWait for in-flight reconciliation requests before closing done.
func ListenForShutdown(
	signalChan chan os.Signal,
	done chan bool,
	signalHandler func(),
	timeToWait time.Duration,
	l *zap.Logger,
) {
	sig := <-signalChan
	switch sig {
	case syscall.SIGTERM, syscall.SIGINT:
		l.Sugar().Infow("Caught signal, stopping staking sync", zap.String("signal", sig.String()))

		signalHandler()

		l.Sugar().Infow("Waiting for in-flight work to drain", zap.Duration("grace", timeToWait))
		time.Sleep(timeToWait)

		l.Sugar().Info("Exiting")
		close(done)
	}
}
