package web

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>prompt2video</title>
<style>
body { font-family: sans-serif; max-width: 720px; margin: 2em auto; }
label { display: block; margin-top: 1em; }
textarea, input, select { width: 100%; padding: .4em; }
#status { margin-top: 1em; white-space: pre-wrap; }
video { width: 100%; margin-top: 1em; }
</style>
</head>
<body>
<h1>prompt2video</h1>
<form id="form">
  <label>Prompt <textarea name="prompt" rows="3" required></textarea></label>
  <label>Emotion <input name="emotion" value="happy"></label>
  <label>Style
    <select name="style">
      {{range .Styles}}<option value="{{.}}"{{if eq . "anime"}} selected{{end}}>{{.}}</option>{{end}}
    </select>
  </label>
  <button type="submit">Generate</button>
</form>
<div id="status"></div>
<video id="result" controls hidden></video>
<script>
const form = document.getElementById("form");
const status = document.getElementById("status");
const result = document.getElementById("result");

form.addEventListener("submit", async (e) => {
  e.preventDefault();
  result.hidden = true;
  const resp = await fetch("/api/jobs", { method: "POST", body: new URLSearchParams(new FormData(form)) });
  const job = await resp.json();
  if (!resp.ok) { status.textContent = job.error; return; }
  status.textContent = "queued " + job.id;

  const proto = location.protocol === "https:" ? "wss://" : "ws://";
  const ws = new WebSocket(proto + location.host + "/api/jobs/" + job.id + "/events");
  ws.onmessage = (m) => {
    const u = JSON.parse(m.data);
    status.textContent = u.status + (u.stage ? " [" + u.stage + "] " : " ") + (u.message || u.error || "");
    if (u.status === "completed") {
      result.src = "/api/jobs/" + job.id + "/video";
      result.hidden = false;
    }
  };
});
</script>
</body>
</html>
`
