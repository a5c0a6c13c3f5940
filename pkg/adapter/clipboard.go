package adapter

import (
	"github.com/atotto/clipboard"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/chatterbox/pkg/model"
)

// SystemClipboard writes to the OS clipboard
type SystemClipboard struct{}

func (SystemClipboard) WriteText(text string) error {
	if clipboard.Unsupported {
		return goerr.Wrap(model.ErrUnsupported, "clipboard is not available")
	}
	if err := clipboard.WriteAll(text); err != nil {
		return goerr.Wrap(err, "failed to write clipboard")
	}
	return nil
}
