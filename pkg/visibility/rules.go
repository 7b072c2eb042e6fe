package visibility

import (
	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/util"
)

//AllowedByPushRules evaluates the push rules of a peer against a local
//event. An OR list admits only events matching one of its entries, a NOT
//list refuses events matching any of its entries. Tags are matched by
//name and organisations by id or UUID of the creating organisation.
func AllowedByPushRules(event data.MinimalEvent, rules data.FilterRules) bool {
	return allowedByRules(event, rules)
}

//AllowedByPullRules evaluates the pull rules of a peer against a remote
//event. The peer applies the rules itself, this guards against peers
//ignoring them.
func AllowedByPullRules(event data.MinimalEvent, rules data.FilterRules) bool {
	return allowedByRules(event, rules)
}

func allowedByRules(event data.MinimalEvent, rules data.FilterRules) bool {
	if !matchRuleSet(event.Tags, rules.Tags) {
		return false
	}
	orgc := data.Organisation{ID: event.OrgcID, UUID: event.OrgcUUID}
	return matchRuleSet(orgc.OrgMatchKeys(), rules.Orgs)
}

func matchRuleSet(values []string, rules data.RuleSet) bool {
	if len(rules.OR) > 0 && !anyInSlice(values, rules.OR) {
		return false
	}
	return !anyInSlice(values, rules.NOT)
}

func anyInSlice(values []string, list []string) bool {
	for _, value := range values {
		if util.StringInSlice(value, list) {
			return true
		}
	}
	return false
}
