package orchestrator

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/opspilot/overseer/internal/bridge"
	"github.com/opspilot/overseer/pkg/models"
)

// Peer is the slice of a bridge endpoint the orchestration layer talks to.
// Both bridge.Server and bridge.Client satisfy it, so either node role can
// sit on either end of the dispatch conversation.
type Peer interface {
	Connected() bool
	Send(msg *bridge.Message) error
	SendAndWait(msg *bridge.Message, timeout time.Duration) *bridge.Message
	OnMessage(t bridge.MessageType, h bridge.Handler)
}

// Payload vocabulary of the dispatch conversation.
const (
	keyDescription = "description"
	keyProject     = "project"
	keyBrief       = "brief"
	keyAgentID     = "agent_id"
	keyNewAgentID  = "new_agent_id"
	keyStatus      = "status"
	keyReason      = "reason"
	keySummary     = "summary"
	keyFiles       = "files"
	keyDuration    = "duration_seconds"
	keyRunning     = "running"

	statusAccepted = "accepted"
	statusRetrying = "retrying"
)

// BridgeRemote delegates tasks to the worker node over a bridge endpoint.
type BridgeRemote struct {
	peer    Peer
	timeout time.Duration
}

var _ Remote = (*BridgeRemote)(nil)

// NewBridgeRemote wraps peer in the dispatch conversation. timeout bounds
// how long a dispatch waits for the worker node's answer.
func NewBridgeRemote(peer Peer, timeout time.Duration) *BridgeRemote {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BridgeRemote{peer: peer, timeout: timeout}
}

// Connected reports whether the worker node is reachable.
func (r *BridgeRemote) Connected() bool {
	return r.peer.Connected()
}

// Dispatch offers a task to the worker node. Silence within the timeout is
// treated the same as an explicit rejection so the caller can fall back to
// local execution without a second decision.
func (r *BridgeRemote) Dispatch(description, project, brief string) (string, bool, string) {
	msg := bridge.NewMessage(bridge.TypeTaskDispatch, map[string]string{
		keyDescription: description,
		keyProject:     project,
		keyBrief:       brief,
	})
	reply := r.peer.SendAndWait(msg, r.timeout)
	if reply == nil {
		return "", false, "no response from worker node"
	}
	switch reply.Payload[keyStatus] {
	case statusAccepted:
		return reply.Payload[keyAgentID], true, ""
	case bridge.StatusRejected:
		return "", false, reply.Payload[keyReason]
	default:
		return "", false, "unexpected reply status " + reply.Payload[keyStatus]
	}
}

// Status asks the worker node how many agents it is running. ok is false
// when the node does not answer in time.
func (r *BridgeRemote) Status(timeout time.Duration) (running int, ok bool) {
	reply := r.peer.SendAndWait(bridge.NewMessage(bridge.TypeStatusRequest, nil), timeout)
	if reply == nil {
		return 0, false
	}
	n, err := strconv.Atoi(reply.Payload[keyRunning])
	if err != nil {
		return 0, false
	}
	return n, true
}

// BindRemoteEvents subscribes the orchestrator to worker-node pushes: retry
// remaps and terminal results for remotely dispatched agents.
func (o *Orchestrator) BindRemoteEvents(peer Peer) {
	peer.OnMessage(bridge.TypeTaskStatus, func(msg *bridge.Message) {
		if msg.Payload[keyStatus] == statusRetrying {
			o.Remap(msg.Payload[keyAgentID], msg.Payload[keyNewAgentID])
		}
	})
	peer.OnMessage(bridge.TypeTaskResult, o.handleRemoteResult)
}

// handleRemoteResult settles a remotely dispatched agent from the worker
// node's pushed outcome. Results for agents this node never dispatched are
// dropped.
func (o *Orchestrator) handleRemoteResult(msg *bridge.Message) {
	p := msg.Payload
	agentID := p[keyAgentID]
	if agentID == "" {
		return
	}

	o.mu.Lock()
	run, tracked := o.remote[agentID]
	delete(o.remote, agentID)
	o.mu.Unlock()
	if !tracked {
		log.Printf("[orchestrator] warning: result for unknown remote agent %s dropped", agentID)
		return
	}

	status := models.AgentStatus(p[keyStatus])
	if !status.Valid() || !status.Terminal() {
		status = models.AgentStatusFailed
	}
	duration, _ := strconv.ParseInt(p[keyDuration], 10, 64)
	var files []string
	if p[keyFiles] != "" {
		files = strings.Split(p[keyFiles], "\n")
	}

	o.finish(agentID, models.RunRecord{
		AgentID:         agentID,
		Description:     run.description,
		Project:         run.project,
		Status:          status,
		StartedAt:       run.dispatched,
		FinishedAt:      time.Now(),
		DurationSeconds: duration,
		Summary:         p[keySummary],
		ModifiedFiles:   files,
	}, status == models.AgentStatusCompleted, p[keyReason])
}

// MemorySyncNotifier shares each settled run with the peer node so both
// sides accumulate the same recent-work context for future briefs.
func MemorySyncNotifier(peer Peer) Notifier {
	return func(n Notification) {
		line := n.Summary
		if !n.Success {
			line = "failed: " + n.Error
		}
		msg := bridge.NewMessage(bridge.TypeMemorySync, map[string]string{
			keyAgentID:     n.AgentID,
			keyDescription: n.Description,
			keyProject:     n.Project,
			keySummary:     line,
		})
		if err := peer.Send(msg); err != nil {
			log.Printf("[orchestrator] memory sync not delivered: %v", err)
		}
	}
}
