package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewRuleCmd создаёт группу команд для управления правилами.
func NewRuleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Manage automation rules",
	}

	cmd.AddCommand(
		newRuleListCmd(clientFn, outputFn),
		newRuleCreateCmd(clientFn, outputFn),
		newRuleShowCmd(clientFn, outputFn),
		newRuleEnableCmd(clientFn, outputFn, true),
		newRuleEnableCmd(clientFn, outputFn, false),
	)

	return cmd
}

func newRuleListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List enabled rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			rules, err := client.ListRules(tenantID)
			if err != nil {
				return err
			}

			headers := []string{"ID", "TRIGGER", "ACTION_TYPE", "PRIORITY", "WEIGHT", "LAST_FIRED"}
			rows := make([][]string, len(rules))
			for i, r := range rules {
				trigger := r.TriggerType
				if r.CronExpr != "" {
					trigger = fmt.Sprintf("%s (%s)", r.TriggerType, r.CronExpr)
				}
				rows[i] = []string{
					r.ID, trigger, r.ActionType,
					strconv.Itoa(r.Priority), strconv.Itoa(r.Weight),
					r.LastFiredAt,
				}
			}

			out.Print(headers, rows, rules)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant ID (required)")
	cmd.MarkFlagRequired("tenant-id")

	return cmd
}

func newRuleCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var tenantID string
	var locationID string
	var trigger string
	var cronExpr string
	var priority int
	var weight int
	var disabled bool

	cmd := &cobra.Command{
		Use:   "create ACTION_TYPE",
		Short: "Create an automation rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			rule, err := client.CreateRule(CreateRuleRequest{
				TenantID:    tenantID,
				LocationID:  locationID,
				TriggerType: trigger,
				CronExpr:    cronExpr,
				ActionType:  args[0],
				Priority:    priority,
				Weight:      weight,
				Enabled:     !disabled,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Rule created: %s", rule.ID))
			out.Print(
				[]string{"ID", "TRIGGER", "ACTION_TYPE", "ENABLED"},
				[][]string{{rule.ID, rule.TriggerType, rule.ActionType, strconv.FormatBool(rule.Enabled)}},
				rule,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&locationID, "location-id", "", "Location scope (empty = tenant-wide)")
	cmd.Flags().StringVar(&trigger, "trigger", "daily", "Trigger type: cron, daily or event")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (for cron trigger)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Conflict priority (higher wins)")
	cmd.Flags().IntVar(&weight, "weight", 0, "Tie-break weight (higher wins)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Create the rule disabled")
	cmd.MarkFlagRequired("tenant-id")

	return cmd
}

func newRuleShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show RULE_ID",
		Short: "Show rule details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			rule, err := client.GetRule(args[0])
			if err != nil {
				return err
			}

			headers := []string{"FIELD", "VALUE"}
			rows := [][]string{
				{"ID", rule.ID},
				{"Tenant", rule.TenantID},
				{"Trigger", rule.TriggerType},
				{"Action type", rule.ActionType},
				{"Priority", strconv.Itoa(rule.Priority)},
				{"Weight", strconv.Itoa(rule.Weight)},
				{"Enabled", strconv.FormatBool(rule.Enabled)},
			}
			if rule.LocationID != "" {
				rows = append(rows, []string{"Location", rule.LocationID})
			}
			if rule.CronExpr != "" {
				rows = append(rows, []string{"Cron", rule.CronExpr})
			}
			if rule.LastFiredAt != "" {
				rows = append(rows, []string{"Last fired", rule.LastFiredAt})
			}

			out.Print(headers, rows, rule)
			return nil
		},
	}

	return cmd
}

func newRuleEnableCmd(clientFn func() *Client, outputFn func() *Output, enable bool) *cobra.Command {
	use := "enable RULE_ID"
	short := "Enable a rule"
	if !enable {
		use = "disable RULE_ID"
		short = "Disable a rule"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			rule, err := client.SetRuleEnabled(args[0], enable)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Rule %s: enabled=%t", rule.ID, rule.Enabled))
			return nil
		},
	}

	return cmd
}
