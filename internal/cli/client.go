package cli

import (
	"io"
	"net/url"
	"time"

	"swiftkyc-client/internal/api"
	"swiftkyc-client/internal/config"
	"swiftkyc-client/internal/device"
	"swiftkyc-client/internal/notify"
	"swiftkyc-client/internal/sysinfo"

	"github.com/mdp/qrterminal/v3"
)

// gateway builds the API client with the identification headers.
func (a *app) gateway() *api.Client {
	c := api.NewClient(a.cfg.Endpoint, a.cfg.APITimeout)
	id := a.cfg.DeviceID
	if id == "" {
		id = device.ID()
	}
	c.Header.Set("X-Device-ID", id)
	c.Header.Set("X-Client-Info", sysinfo.Collect().Header())
	return c
}

func (a *app) bar(w io.Writer) *notify.Bar {
	return notify.New(notify.WriterRenderer{W: w}, config.Duration(a.cfg.MessageDismiss, 6*time.Second))
}

// videoKYCLink appends the session to the configured Video KYC URL.
func videoKYCLink(base, sessionID string) string {
	if sessionID == "" {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("session", sessionID)
	u.RawQuery = q.Encode()
	return u.String()
}

func printQR(w io.Writer, link string) {
	qrterminal.GenerateHalfBlock(link, qrterminal.L, w)
	io.WriteString(w, "Scan to join Video KYC: "+link+"\n")
}
