package profiling

import (
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
)

// InitCPUProfiling starts writing a CPU profile to the given path and returns
// the function that stops profiling and flushes the file.
func InitCPUProfiling(path string) func() {
	logrus.WithField("path", path).Info("starting CPU profiling")

	file, err := os.Create(path)
	if err != nil {
		logrus.WithError(err).WithField("path", path).Fatal("could not create CPU profile")
	}

	if err := pprof.StartCPUProfile(file); err != nil {
		logrus.WithError(err).Fatal("could not start CPU profile")
	}

	return func() {
		pprof.StopCPUProfile()

		if err := file.Close(); err != nil {
			logrus.WithError(err).Warn("could not close CPU profile")
		}
	}
}

// InitMemoryProfiling returns the function that snapshots the heap into the
// given path. The snapshot is taken when the returned function runs, so it
// captures the memory state at shutdown.
func InitMemoryProfiling(path string) func() {
	logrus.WithField("path", path).Info("memory profiling armed")

	return func() {
		file, err := os.Create(path)
		if err != nil {
			logrus.WithError(err).WithField("path", path).Fatal("could not create memory profile")
		}

		runtime.GC()

		if err := pprof.WriteHeapProfile(file); err != nil {
			logrus.WithError(err).Fatal("could not write memory profile")
		}

		if err := file.Close(); err != nil {
			logrus.WithError(err).Warn("could not close memory profile")
		}
	}
}
