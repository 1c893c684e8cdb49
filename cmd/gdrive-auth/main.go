// Command gdrive-auth runs the OAuth consent flow once and prints the
// refresh token used by STORAGE_PROVIDER=gdrive.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"

	"reelrender/internal/pkg/logger"
	"reelrender/internal/util"
)

const consentTimeout = 3 * time.Minute

func main() {
	// A .env next to the binary is optional; real env vars win.
	_ = godotenv.Load()

	log := logger.New(logger.Config{Level: "info", Format: "text", ServiceName: "gdrive-auth", Output: os.Stderr})

	clientID := util.Env("GDRIVE_CLIENT_ID", "")
	clientSecret := util.Env("GDRIVE_CLIENT_SECRET", "")
	if clientID == "" || clientSecret == "" {
		log.Error("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET are required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), consentTimeout)
	defer cancel()

	tok, err := authorize(ctx, clientID, clientSecret)
	if err != nil {
		log.LogFatal("authorization failed", err)
	}

	// Google only returns a refresh token on the first consent for a client.
	if strings.TrimSpace(tok.RefreshToken) == "" {
		log.Error("no refresh_token returned; revoke the app at https://myaccount.google.com/permissions and retry")
		os.Exit(1)
	}
	fmt.Println(tok.RefreshToken)
}

// authorize serves the redirect on a free loopback port and exchanges the
// code it receives.
func authorize(ctx context.Context, clientID, clientSecret string) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	defer ln.Close()

	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", ln.Addr().(*net.TCPAddr).Port)
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
		RedirectURL:  redirectURL,
	}

	state, err := randomState()
	if err != nil {
		return nil, err
	}

	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res result
		switch {
		case q.Get("state") != state:
			res.err = fmt.Errorf("invalid state")
		case q.Get("error") != "":
			res.err = fmt.Errorf("auth error: %s", q.Get("error"))
		case q.Get("code") == "":
			res.err = fmt.Errorf("missing code")
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Authorized. You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n\n%s\n\nWaiting for the callback on %s\n", authURL, redirectURL)

	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		return conf.Exchange(ctx, res.code)
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for authorization: %w", ctx.Err())
	}
}

func randomState() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
