package invitation

import (
	"fmt"

	"github.com/zeni/ledgerflow/notify"
	"github.com/zeni/ledgerflow/workflow"
)

// Message topics.
const (
	TopicInvite   = "invitation.invite"
	TopicReminder = "invitation.reminder"
	TopicDeclined = "invitation.declined"
)

// stepMessage builds a message keyed to the current run and step.
func stepMessage(wf *workflow.Workflow, step, to, subject, body string) notify.Message {
	return notify.NewMessageAt(notify.StepMessageID(wf.RunID(), step), wf.Now(), to, subject, body)
}

func inviteMessage(wf *workflow.Workflow, p Payload) notify.Message {
	msg := stepMessage(wf, StepSend, p.Email,
		"You have been invited to a shared ledger",
		fmt.Sprintf("%s invited you to join ledger %s. Accept the invitation to start tracking shared expenses.",
			p.InviterID, p.LedgerID),
	)
	msg.Topic = TopicInvite
	return msg
}

func reminderMessage(wf *workflow.Workflow, p Payload) notify.Message {
	msg := stepMessage(wf, StepRemind, p.Email,
		"Reminder: your ledger invitation is waiting",
		fmt.Sprintf("Your invitation to ledger %s is still pending. It expires if not accepted.", p.LedgerID),
	)
	msg.Topic = TopicReminder
	return msg
}

func declinedMessage(wf *workflow.Workflow, p Payload, inviterEmail string) notify.Message {
	msg := stepMessage(wf, StepDecide, inviterEmail,
		"Ledger invitation expired",
		fmt.Sprintf("The invitation for %s to ledger %s expired without an answer.", p.Email, p.LedgerID),
	)
	msg.Topic = TopicDeclined
	return msg
}
