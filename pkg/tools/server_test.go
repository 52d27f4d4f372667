package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/poucet/maestro/pkg/fault"
)

func handle(t *testing.T, svc *Service, request string) string {
	t.Helper()
	s := NewServer(svc, "test")

	resp := s.HandleMessage(t.Context(), json.RawMessage(request))
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(data)
}

func TestServerListsTools(t *testing.T) {
	env := newTestEnv(t)

	out := handle(t, env.svc, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)

	var listed []string
	for _, name := range gjson.Get(out, "result.tools.#.name").Array() {
		listed = append(listed, name.String())
	}
	assert.ElementsMatch(t, []string{
		"start_task", "stop_task", "restart_task", "task_status",
		"list_process_logs", "read_process_log", "process_history",
		"read_file", "write_file", "apply_diff", "list_files", "find_files", "search_files",
		"git_commit", "git_restore", "git_status", "git_detailed_status",
		"git_log", "git_show", "git_diff", "git_branch_list",
	}, listed)
}

func TestServerCallsTool(t *testing.T) {
	fake := &fakeLifecycle{result: fault.OK("Process started (PID 42)")}
	env := newTestEnv(t, WithSupervisor(fake))

	out := handle(t, env.svc, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"start_task","arguments":{"force_new":true}}}`)

	assert.Equal(t, "Process started (PID 42)", gjson.Get(out, "result.content.0.text").String())
	assert.Equal(t, []bool{true}, fake.forceNew)
}
