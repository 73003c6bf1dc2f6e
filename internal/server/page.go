package server

// chatPage is the single-page chat UI served at GET /.
const chatPage = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>AI Newsroom</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 720px; margin: 2rem auto; padding: 0 1rem; }
.msg { padding: .6rem .8rem; border-radius: 6px; margin: .5rem 0; white-space: pre-wrap; }
.user { background: #eef2ff; }
.assistant { background: #f4f4f5; }
.status { color: #71717a; font-size: .85rem; margin: .2rem 0; }
form { display: flex; gap: .5rem; margin-top: 1rem; }
input { flex: 1; padding: .5rem; }
</style>
</head>
<body>
<h1>AI Newsroom</h1>
<div id="log"></div>
<form id="chat">
  <input id="message" autocomplete="off" placeholder="Enter a news topic (e.g., 'The history of NVIDIA')">
  <button type="submit">Send</button>
</form>
<script>
const log = document.getElementById("log");
let threadID = localStorage.getItem("newsroom_thread") || "";

function add(cls, text) {
  const div = document.createElement("div");
  div.className = cls;
  div.textContent = text;
  log.appendChild(div);
  return div;
}

document.getElementById("chat").addEventListener("submit", async (e) => {
  e.preventDefault();
  const input = document.getElementById("message");
  const message = input.value.trim();
  if (!message) return;
  input.value = "";
  add("msg user", message);

  const resp = await fetch("/v1/chat", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({thread_id: threadID, message}),
  });
  const body = await resp.json();
  if (!resp.ok) { add("status", "Error: " + body.error); return; }
  threadID = body.thread_id;
  localStorage.setItem("newsroom_thread", threadID);

  const status = add("status", "Agents are working...");
  const events = new EventSource("/v1/runs/" + body.run_id + "/events");
  events.addEventListener("step", (ev) => add("status", JSON.parse(ev.data).message));
  events.addEventListener("done", async () => {
    events.close();
    const run = await (await fetch("/v1/runs/" + body.run_id)).json();
    status.textContent = run.state === "succeeded" ? "Process complete!" : "Run " + run.state;
    add("msg assistant", run.answer || run.failure_reason || "");
  });
});
</script>
</body>
</html>
`
