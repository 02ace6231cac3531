package shortlink

import (
	"html/template"
	"net/http"
)

// The redirect endpoint is the one place the runtime emits HTML. Pages are
// deliberately self-contained: no external assets, auto-escaped URLs.

var redirectTmpl = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="0;url={{.Target}}">
<title>Redirecting…</title>
</head>
<body>
<p>Redirecting to <a href="{{.Target}}">{{.Target}}</a>…</p>
</body>
</html>
`))

var warningTmpl = template.Must(template.New("warning").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Leaving this site</title>
<style>
body{font-family:sans-serif;max-width:36em;margin:4em auto;padding:0 1em}
.url{word-break:break-all;background:#f4f4f4;padding:.5em;border-radius:4px}
.actions{margin-top:1.5em}
.actions a{display:inline-block;padding:.6em 1.4em;margin-right:1em;border-radius:4px;text-decoration:none}
.continue{background:#2563eb;color:#fff}
.cancel{background:#e5e7eb;color:#111}
</style>
</head>
<body>
<h1>You are leaving this site</h1>
<p>This shortlink points to an external website:</p>
<p class="url">{{.Target}}</p>
<p>Only continue if you trust this destination.</p>
<div class="actions">
<a class="continue" href="{{.Target}}" rel="noopener noreferrer">Continue</a>
<a class="cancel" href="#" onclick="history.back();return false">Cancel</a>
</div>
</body>
</html>
`))

var errorTmpl = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>body{font-family:sans-serif;max-width:36em;margin:4em auto;padding:0 1em}</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Detail}}</p>
</body>
</html>
`))

func writeRedirectPage(w http.ResponseWriter, target string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(http.StatusOK)
	redirectTmpl.Execute(w, map[string]string{"Target": target})
}

func writeWarningPage(w http.ResponseWriter, target string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(http.StatusOK)
	warningTmpl.Execute(w, map[string]string{"Target": target})
}

func writeErrorPage(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	errorTmpl.Execute(w, map[string]string{"Title": title, "Detail": detail})
}
