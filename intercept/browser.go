package intercept

import (
	"context"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/wirepair/gcd"
	"gitlab.com/kittcore/kitt"
)

// ErrBrowserClosing returned when opening tabs during shutdown
var ErrBrowserClosing = errors.New("unable to open tab, as closing down")

var startupFlags = []string{
	"--enable-automation",
	"--enable-features=NetworkService",
	"--test-type",
	"--disable-client-side-phishing-detection",
	"--disable-component-update",
	"--disable-infobars",
	"--disable-domain-reliability",
	"--disable-background-networking",
	"--disable-sync",
	"--disable-new-browser-first-run",
	"--disable-default-apps",
	"--disable-popup-blocking",
	"--disable-extensions",
	"--disable-features=TranslateUI",
	"--disable-gpu",
	"--disable-dev-shm-usage",
	"--no-sandbox",
	"--no-first-run",
	"--window-size=1024,768",
	"--safebrowsing-disable-auto-update",
	"--password-store=basic",
}

// Browser is a local chrome process whose tabs are intercepted
type Browser struct {
	cfg     *kitt.Config
	g       *gcd.Gcd
	tmp     string
	closing int32
}

// NewBrowser from config, call Start before opening tabs
func NewBrowser(cfg *kitt.Config) *Browser {
	return &Browser{cfg: cfg}
}

// Start chrome with a random profile directory and debugger port
func (b *Browser) Start() error {
	chrome, tmp := FindChrome()
	if b.cfg.ChromePath != "" {
		chrome = b.cfg.ChromePath
	}
	b.tmp = tmp

	if err := os.MkdirAll(tmp, 0755); err != nil {
		return errors.Wrap(err, "creating profile directory")
	}

	b.g = gcd.NewChromeDebugger()
	b.g.DeleteProfileOnExit()
	b.g.AddFlags(launchFlags(b.cfg.Headless))

	port := randPort()
	if err := b.g.StartProcess(chrome, randProfile(tmp), port); err != nil {
		return errors.Wrapf(err, "starting %s", chrome)
	}
	log.Info().Str("chrome", chrome).Str("port", port).Bool("headless", b.cfg.Headless).Msg("browser started")
	return nil
}

// NewTab intercepted by stager
func (b *Browser) NewTab(ctx context.Context, stager Stager) (*Tab, error) {
	if atomic.LoadInt32(&b.closing) == 1 {
		return nil, ErrBrowserClosing
	}
	target, err := b.g.NewTab()
	if err != nil {
		return nil, errors.Wrap(err, "creating tab")
	}
	timeout := time.Duration(b.cfg.ListenerTimeout) * time.Millisecond
	return NewTab(ctx, target, stager, timeout)
}

// CloseTab and stop intercepting it
func (b *Browser) CloseTab(tab *Tab) error {
	tab.Close()
	return b.g.CloseTab(tab.target)
}

// Close the browser process
func (b *Browser) Close() error {
	if !atomic.CompareAndSwapInt32(&b.closing, 0, 1) {
		return nil
	}
	if b.g == nil {
		return nil
	}
	if err := b.g.ExitProcess(); err != nil {
		return err
	}
	return RemoveTmpContents(b.tmp)
}

func launchFlags(headless bool) []string {
	flags := append([]string{}, startupFlags...)
	if headless {
		flags = append(flags, "--headless")
	}
	return append(flags, "about:blank")
}

// FindChrome on the FS
func FindChrome() (string, string) {
	switch runtime.GOOS {
	case "windows":
		return "C:\\Program Files (x86)\\Google\\Chrome\\Application\\chrome.exe", "C:\\Temp\\gcd\\"
	case "darwin":
		return "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome", "/tmp/gcd/"
	case "linux":
		return "/usr/bin/chromium-browser", "/tmp/gcd/"
	}
	return "", "tmp"
}

func randPort() string {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		log.Warn().Err(err).Msg("unable to get port using default 9022")
		return "9022"
	}
	_, port, _ := net.SplitHostPort(l.Addr().String())
	l.Close()
	return port
}

func randProfile(tmp string) string {
	profile, err := ioutil.TempDir(tmp, "gcd")
	if err != nil {
		log.Error().Err(err).Msg("failed to create temporary profile directory")
		return "tmp"
	}
	return profile
}

// RemoveTmpContents that the browser created
func RemoveTmpContents(tmp string) error {
	files, err := filepath.Glob(filepath.Join(tmp, "gcd*"))
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := os.RemoveAll(file); err != nil {
			return err
		}
	}
	return nil
}
