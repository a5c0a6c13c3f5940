package adapter

import (
	"os/exec"
	"runtime"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/chatterbox/pkg/model"
)

// BrowserOpener opens URLs with the platform's default handler
type BrowserOpener struct{}

func (BrowserOpener) Open(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		if _, err := exec.LookPath("xdg-open"); err != nil {
			return goerr.Wrap(model.ErrUnsupported, "no URL opener found")
		}
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		return goerr.Wrap(err, "failed to open URL", goerr.V("url", url))
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
