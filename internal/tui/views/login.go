package views

import (
	"fmt"

	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"
)

// LoginView shows the device-code sign-in challenge.
type LoginView struct {
	*tview.TextView
}

// NewLoginView creates the login view.
func NewLoginView() *LoginView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true).SetTitle(" Sign in ")
	return &LoginView{TextView: tv}
}

// ShowChallenge renders the verification URL, user code, and a scannable QR.
func (lv *LoginView) ShowChallenge(verificationURL, userCode string, expiresInSec int) {
	lv.Clear()
	_, _ = fmt.Fprintf(lv, "\nOpen [::b]%s[-:-:-] and enter code [::b]%s[-:-:-]\n\n", verificationURL, userCode)

	qr, err := qrcode.New(verificationURL+"?code="+userCode, qrcode.Medium)
	if err == nil {
		_, _ = fmt.Fprint(lv, qr.ToSmallString(false))
	}
	_, _ = fmt.Fprintf(lv, "\nCode expires in %ds. This screen closes once you are signed in.\n", expiresInSec)
}

// ShowMessage displays a status or error message.
func (lv *LoginView) ShowMessage(msg string) {
	lv.Clear()
	_, _ = fmt.Fprintf(lv, "\n\n%s\n", msg)
}
