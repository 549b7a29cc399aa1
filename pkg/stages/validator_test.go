package stages

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuxpilot/pkg/agent/llm"
	"tuxpilot/pkg/proto"
)

func TestValidatorBlocksHighRiskRootCommands(t *testing.T) {
	deps, _, _ := testDeps(t, []llm.CompletionResponse{
		{Content: `{
			"verdicts": [
				{"command": "df -h", "approve": true, "risk": "low"},
				{"command": "sudo rm -rf /var/cache/*", "approve": true, "risk": "high",
				 "riskExplanation": "deletes cache trees"}
			],
			"warnings": [],
			"suggestions": []
		}`},
	})
	v := &Validator{Deps: deps}

	out, err := v.Run(context.Background(), ValidatorInput{
		AgentID: "validator-1",
		Query:   "free up disk space",
		Commands: []proto.CommandProposal{
			{Command: "df -h", PrivilegeLevel: proto.PrivilegeReadOnly, Risk: proto.RiskLow},
			{Command: "sudo rm -rf /var/cache/*", PrivilegeLevel: proto.PrivilegeRoot, Risk: proto.RiskHigh},
		},
	})
	require.NoError(t, err)

	// The model approved the root command; policy overrides it.
	require.Len(t, out.ValidatedCommands, 1)
	assert.Equal(t, "df -h", out.ValidatedCommands[0].Command)
	require.Len(t, out.Blocked, 1)
	assert.Equal(t, "sudo rm -rf /var/cache/*", out.Blocked[0].Command)
	require.NotEmpty(t, out.Warnings)
	assert.True(t, strings.Contains(out.Warnings[len(out.Warnings)-1], "sudo rm -rf"))
}

func TestValidatorNeverIntroducesCommands(t *testing.T) {
	deps, _, _ := testDeps(t, []llm.CompletionResponse{
		{Content: `{
			"verdicts": [
				{"command": "uptime", "approve": true, "risk": "low"},
				{"command": "reboot", "approve": true, "risk": "low"}
			]
		}`},
	})
	v := &Validator{Deps: deps}

	out, err := v.Run(context.Background(), ValidatorInput{
		AgentID: "validator-1",
		Query:   "is the system up",
		Commands: []proto.CommandProposal{
			{Command: "uptime", PrivilegeLevel: proto.PrivilegeReadOnly, Risk: proto.RiskLow},
		},
	})
	require.NoError(t, err)

	// "reboot" came only from the model; it must not appear anywhere.
	require.Len(t, out.ValidatedCommands, 1)
	assert.Equal(t, "uptime", out.ValidatedCommands[0].Command)
	assert.Empty(t, out.Blocked)
}

func TestValidatorCanRaiseButNotLowerRisk(t *testing.T) {
	deps, _, _ := testDeps(t, []llm.CompletionResponse{
		{Content: `{
			"verdicts": [
				{"command": "mkfs.ext4 /dev/sdb1", "approve": true, "risk": "low"},
				{"command": "fdisk -l", "approve": true, "risk": "high",
				 "riskExplanation": "actually fine but flagged for review"}
			]
		}`},
	})
	v := &Validator{Deps: deps}

	out, err := v.Run(context.Background(), ValidatorInput{
		AgentID: "validator-1",
		Query:   "format the new disk",
		Commands: []proto.CommandProposal{
			{Command: "mkfs.ext4 /dev/sdb1", PrivilegeLevel: proto.PrivilegeRoot, Risk: proto.RiskHigh},
			{Command: "fdisk -l", PrivilegeLevel: proto.PrivilegeRoot, Risk: proto.RiskLow},
		},
	})
	require.NoError(t, err)

	// mkfs keeps its high risk despite the model's "low", and fdisk has its
	// risk raised to high by the reviewer; both are root, so both block.
	require.Len(t, out.Blocked, 2)
	assert.Empty(t, out.ValidatedCommands)
	for _, cmd := range out.Blocked {
		assert.Equal(t, proto.RiskHigh, cmd.Risk, "command %s", cmd.Command)
	}
}

func TestValidatorUnreviewedCommandPassesThrough(t *testing.T) {
	deps, _, _ := testDeps(t, []llm.CompletionResponse{
		{Content: `{"verdicts": []}`},
	})
	v := &Validator{Deps: deps}

	out, err := v.Run(context.Background(), ValidatorInput{
		AgentID: "validator-1",
		Query:   "check memory",
		Commands: []proto.CommandProposal{
			{Command: "free -m", PrivilegeLevel: proto.PrivilegeReadOnly, Risk: proto.RiskLow},
		},
	})
	require.NoError(t, err)
	require.Len(t, out.ValidatedCommands, 1)
	assert.Equal(t, "free -m", out.ValidatedCommands[0].Command)
}

func TestValidatorNoCommandsSkipsModel(t *testing.T) {
	deps, _, _ := testDeps(t, nil)
	v := &Validator{Deps: deps}

	out, err := v.Run(context.Background(), ValidatorInput{
		AgentID:  "validator-1",
		Query:    "what is an inode",
		Commands: nil,
	})
	require.NoError(t, err)
	assert.Empty(t, out.ValidatedCommands)
	assert.Empty(t, out.Blocked)
	assert.Zero(t, out.TokensUsed)
}
