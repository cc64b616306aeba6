// Command shompos boots the kernel on the host, optionally mounts a host
// directory into /mnt and runs the init process until it exits.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacobobendrado/4810-Operating-System/kernel/cpu"
	"github.com/jacobobendrado/4810-Operating-System/kernel/kmain"
	"github.com/sirupsen/logrus"
)

var (
	cmdLine  = flag.String("cmdline", "", "kernel command line, e.g. \"console=stdio heap.blocks=128\"")
	mountDir = flag.String("mount", "", "host directory to copy into /mnt at boot")
	verbose  = flag.Bool("v", false, "enable debug logging")
)

func main() {
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	os.Exit(run(*cmdLine, *mountDir))
}

func run(cmdLine, mountDir string) int {
	logger := logrus.WithField("cmdline", cmdLine)
	logger.Debug("booting kernel")

	k, err := kmain.Boot(cmdLine, nil)
	if err != nil {
		logger.WithField("module", err.Module).Error(err.Message)
		return 1
	}
	defer func() {
		if closer, ok := k.TTY.(interface{ Close() }); ok {
			closer.Close()
		}
		k.Close()
	}()

	if mountDir != "" {
		imported, err := mount(k, mountDir)
		if err != nil {
			logger.WithFields(logrus.Fields{"dir": mountDir, "module": err.Module}).Error(err.Message)
			return 1
		}
		logger.WithFields(logrus.Fields{"dir": mountDir, "files": imported}).Info("mounted host directory at /mnt")
	}

	pid, err := k.Spawn(initProcess(k))
	if err != nil {
		logger.WithField("module", err.Module).Error(err.Message)
		return 1
	}
	logger.WithField("pid", pid).Debug("spawned init")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	go func() {
		select {
		case sig := <-signals:
			logger.WithField("signal", sig).Info("shutting down")
			k.Shutdown()
		case <-cpu.Halted():
			logger.Error("kernel halted")
			os.Exit(2)
		}
	}()

	if err = k.Run(); err != nil {
		logger.WithField("module", err.Module).Error(err.Message)
		return 1
	}

	logger.Debug("kernel stopped")
	return 0
}
