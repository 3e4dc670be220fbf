package web

import (
	"html/template"
	"net/http"
)

type countdownData struct {
	Heading     string
	Message     string
	RedirectURL string
	Seconds     int
}

var countdownPage = template.Must(template.New("return").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>{{.Heading}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.ok{color:#057a55}
.btn{display:inline-block;margin-top:16px;padding:10px 16px;border-radius:8px;border:1px solid #888;text-decoration:none}
.small{font-size:12px;color:#666}
</style>
</head>
<body>
<div class="card">
  <h2 class="ok">{{.Heading}}</h2>
  <p>{{.Message}}</p>
  <p class="small">Redirecting in <span id="count">{{.Seconds}}</span> seconds&hellip;</p>
  <a class="btn" href="{{.RedirectURL}}">Continue now</a>
</div>
<script>
(function(){
  var n = {{.Seconds}};
  var el = document.getElementById('count');
  var t = setInterval(function(){
    n--;
    if (n <= 0) { clearInterval(t); window.location.href = {{.RedirectURL}}; return; }
    el.textContent = n;
  }, 1000);
})();
</script>
</body>
</html>`))

var errorPage = template.Must(template.New("err").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>Payment Return</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.fail{color:#b00020}
.btn{display:inline-block;margin-top:16px;padding:10px 16px;border-radius:8px;border:1px solid #888;text-decoration:none}
</style>
</head>
<body>
<div class="card">
  <h2 class="fail">Something went wrong</h2>
  <p>{{.Msg}}</p>
  <a class="btn" href="/">Back to home</a>
</div>
</body>
</html>`))

func (s *Server) renderCountdown(w http.ResponseWriter, d countdownData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := countdownPage.Execute(w, d); err != nil {
		s.log.Error().Err(err).Msg("return page render failed")
	}
}

func (s *Server) renderError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_ = errorPage.Execute(w, struct{ Msg string }{Msg: msg})
}
