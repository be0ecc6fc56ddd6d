// Command cryfs creates, checks, and inspects a cryfs base directory: an
// encrypted block store holding a Blob-on-Blocks tree. It does not mount
// anything; FUSE integration is a separate adapter outside this module.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/thezedwards/cryfs/internal/blockstore"
	"github.com/thezedwards/cryfs/internal/blockstore/caching"
	"github.com/thezedwards/cryfs/internal/compression"
	"github.com/thezedwards/cryfs/internal/cryconfig"
	"github.com/thezedwards/cryfs/internal/crydevice"
	"github.com/thezedwards/cryfs/internal/cryptocore"
	"github.com/thezedwards/cryfs/internal/ctlsocksrv"
	"github.com/thezedwards/cryfs/internal/exitcodes"
	"github.com/thezedwards/cryfs/internal/processhardening"
	"github.com/thezedwards/cryfs/internal/speed"
	"github.com/thezedwards/cryfs/internal/tlog"
	"golang.org/x/term"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	ph := processhardening.New()
	ph.HardenProcess()

	var err error
	switch cmd {
	case "create":
		err = runCreate(args)
	case "fsck":
		err = runFsck(args)
	case "stat":
		err = runStat(args)
	case "speed":
		runSpeed(args)
	case "serve":
		err = runServe(args)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		code := exitCodeFor(err)
		tlog.Warn.Printf("%s: %v\n", exitcodes.Token(code), err)
		os.Exit(code)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cryfs create|fsck|stat|speed|serve <basedir> [flags]")
}

// runServe opens a device and blocks, answering control-socket diagnostics
// queries, until interrupted. It does not mount a filesystem: FUSE
// integration is a separate adapter outside this module.
func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	externalConfig := fs.String("extconfig", "", "path to an external config file")
	ctlsockPath := fs.String("ctlsock", "", "path to create the control socket at")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("serve: missing basedir")
	}
	basedir := fs.Arg(0)

	password, err := readPasswordOnce()
	if err != nil {
		return err
	}
	cfg, err := cryconfig.Load(basedir, *externalConfig, password)
	if err != nil {
		return err
	}
	dev, err := crydevice.Open(cfg, basedir, compression.TagNone, caching.DefaultCapacity)
	if err != nil {
		return err
	}
	defer dev.Close()

	if _, err := dev.LoadRootBlob(); err != nil {
		return err
	}

	if *ctlsockPath != "" {
		listener, err := ctlsocksrv.Listen(*ctlsockPath)
		if err != nil {
			return err
		}
		defer listener.Close()
		go ctlsocksrv.Serve(listener, crydevice.CtlsockAdapter{Device: dev})
		fmt.Printf("control socket listening at %s\n", *ctlsockPath)
	}

	fmt.Printf("serving %s (cipher=%s, root=%s), press Ctrl-C to stop\n", basedir, dev.CipherName(), dev.RootBlobID())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	return nil
}

func runSpeed(args []string) {
	fs := flag.NewFlagSet("speed", flag.ExitOnError)
	enhanced := fs.Bool("enhanced", false, "also benchmark decryption and block-size scaling")
	fs.Parse(args)
	if *enhanced {
		speed.RunEnhanced()
		return
	}
	speed.Run()
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	cipherName := fs.String("cipher", "aes-256-gcm", "block cipher")
	blockSize := fs.Int("blocksize", cryconfig.DefaultBlockSizeBytes, "block size in bytes")
	compressName := fs.String("compression", "none", "compression algorithm (none, rle, snappy)")
	useArgon2id := fs.Bool("argon2id", true, "use argon2id instead of scrypt for the config KDF")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("create: missing basedir")
	}
	basedir := fs.Arg(0)

	compressTag, err := compression.ByName(*compressName)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(basedir, 0700); err != nil {
		return err
	}

	cfg, err := cryconfig.Create(*cipherName, *blockSize)
	if err != nil {
		return fmt.Errorf("%w: %s", errCipherNotImplemented, err)
	}

	password, err := readPasswordTwice()
	if err != nil {
		return err
	}

	dev, err := crydevice.Open(cfg, basedir, compressTag, caching.DefaultCapacity)
	if err != nil {
		return err
	}
	if _, err := dev.CreateRootBlob(); err != nil {
		dev.Close()
		return err
	}
	cfg.RootBlob = dev.RootBlobID()
	if err := dev.Close(); err != nil {
		return err
	}

	envelope, err := cryconfig.Seal(cfg, password, *useArgon2id)
	if err != nil {
		return err
	}
	configPath := basedir + "/cryfs.config"
	if err := os.WriteFile(configPath, envelope, 0600); err != nil {
		return err
	}

	fmt.Printf("created cryfs filesystem in %s (cipher=%s, root=%s)\n", basedir, cfg.Cipher, cfg.RootBlob)
	return nil
}

func runFsck(args []string) error {
	fs := flag.NewFlagSet("fsck", flag.ExitOnError)
	externalConfig := fs.String("extconfig", "", "path to an external config file")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("fsck: missing basedir")
	}
	basedir := fs.Arg(0)

	password, err := readPasswordOnce()
	if err != nil {
		return err
	}
	cfg, err := cryconfig.Load(basedir, *externalConfig, password)
	if err != nil {
		return err
	}
	dev, err := crydevice.Open(cfg, basedir, compression.TagNone, caching.DefaultCapacity)
	if err != nil {
		return err
	}
	defer dev.Close()

	if _, err := dev.LoadRootBlob(); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func runStat(args []string) error {
	fs := flag.NewFlagSet("stat", flag.ExitOnError)
	externalConfig := fs.String("extconfig", "", "path to an external config file")
	blockID := fs.String("block", "", "hex block id to stat, defaults to the root blob")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("stat: missing basedir")
	}
	basedir := fs.Arg(0)

	password, err := readPasswordOnce()
	if err != nil {
		return err
	}
	cfg, err := cryconfig.Load(basedir, *externalConfig, password)
	if err != nil {
		return err
	}
	dev, err := crydevice.Open(cfg, basedir, compression.TagNone, caching.DefaultCapacity)
	if err != nil {
		return err
	}
	defer dev.Close()

	id := *blockID
	if id == "" {
		id = dev.RootBlobID().String()
	}
	result, err := dev.StatBlock(id)
	if err != nil {
		return err
	}
	fmt.Printf("cipher=%s root=%s block=%s: %s\n", dev.CipherName(), dev.RootBlobID(), id, result)
	return nil
}

func readPasswordOnce() ([]byte, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return password, nil
}

func readPasswordTwice() ([]byte, error) {
	p1, err := readPasswordOnce()
	if err != nil {
		return nil, err
	}
	fmt.Fprint(os.Stderr, "Confirm password: ")
	p2, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password confirmation: %w", err)
	}
	if string(p1) != string(p2) {
		return nil, fmt.Errorf("passwords do not match")
	}
	return p1, nil
}

var errCipherNotImplemented = fmt.Errorf("cipher not implemented")

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, cryconfig.ErrConfigFileDoesntExist):
		return exitcodes.ConfigFileDoesntExist
	case errors.Is(err, cryconfig.ErrDecryptionFailed):
		return exitcodes.DecryptionFailed
	case errors.Is(err, cryconfig.ErrIncompatibleVersion):
		return exitcodes.FilesystemIncompatibleVersion
	case errors.Is(err, crydevice.ErrFilesystemInvalid):
		return exitcodes.FilesystemInvalid
	case errors.Is(err, blockstore.ErrIntegrity):
		return exitcodes.IntegrityError
	case errors.Is(err, blockstore.ErrNotFound):
		return exitcodes.FilesystemInvalid
	case errors.Is(err, errCipherNotImplemented), errors.Is(err, cryptocore.ErrCipherNotImplemented):
		return exitcodes.CipherNotImplemented
	default:
		return exitcodes.IoError
	}
}
