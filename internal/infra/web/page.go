package web

import (
	"html/template"
	"net/http"

	"chat-assistant/internal/domain/model"
	"chat-assistant/internal/infra/i18n"
)

type pageData struct {
	Lang     string
	State    model.ChatSessionState
	Awaiting bool
	Banner   string
	Version  uint64
}

type pages struct {
	chat  *template.Template
	about *template.Template
}

func newPages(tr *i18n.Translator) *pages {
	funcs := template.FuncMap{"t": tr.T}
	return &pages{
		chat:  template.Must(template.New("chat").Funcs(funcs).Parse(layout + chatBody)),
		about: template.Must(template.New("about").Funcs(funcs).Parse(layout + aboutBody)),
	}
}

func (p *pages) render(w http.ResponseWriter, t *template.Template, data pageData) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	return t.ExecuteTemplate(w, "layout", data)
}

const layout = `{{define "layout"}}<!doctype html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
{{if .Awaiting}}<meta http-equiv="refresh" content="2" />{{end}}
<title>{{t "page.title"}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:720px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.banner{color:#b00020;border:1px solid #b00020;border-radius:8px;padding:8px 12px;}
.chat{list-style:none;padding:0;}
.chat li{margin:8px 0;padding:8px 12px;border-radius:8px;white-space:pre-wrap;}
.chat .user{background:#eef3ff;} .chat .assistant{background:#f3f3f3;}
.row{display:flex;gap:8px;margin:8px 0;} .row input{flex:1;}
.small{font-size:12px;color:#666}
</style>
</head>
<body><main class="card">{{template "body" .}}</main></body>
</html>{{end}}`

const chatBody = `{{define "body"}}
<h1>{{t "page.title"}}</h1>
{{with .Banner}}<p class="banner" role="alert">{{.}}</p>{{end}}
<form class="row" method="post" action="/api-key">
<label for="api_key">{{t "page.api_key"}}</label>
<input id="api_key" type="password" name="api_key" value="{{.State.APIKey}}" autocomplete="off" />
<button type="submit">{{t "page.save"}}</button>
</form>
<form method="post" action="/reset"><button type="submit">{{t "page.reset"}}</button></form>
<ul class="chat" data-version="{{.Version}}">
{{range .State.Chat}}<li class="{{.Role}}"><b>{{if eq .Role "user"}}{{t "page.you"}}{{else}}{{t "page.assistant"}}{{end}}:</b> {{.Text}}</li>
{{end}}</ul>
{{if .Awaiting}}<p class="small">{{t "page.waiting"}}</p>{{end}}
<form class="row" method="post" action="/ask">
<input type="text" name="question" value="{{.State.CurrentQuestion}}" placeholder="{{t "page.question_placeholder"}}" />
<button type="submit"{{if .Awaiting}} disabled{{end}}>{{t "page.ask"}}</button>
</form>
<p class="small"><a href="/about">{{t "page.about_link"}}</a></p>
{{end}}`

const aboutBody = `{{define "body"}}
<h1>{{t "about.title"}}</h1>
<p>{{t "about.body"}}</p>
<p><a href="/">{{t "about.back"}}</a></p>
{{end}}`
