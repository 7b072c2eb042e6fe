package config

type (
	//TableCfg is the container for other table config sections
	TableCfg struct {
		Log         LogTableCfg
		Events      EventTableCfg
		Galaxy      GalaxyTableCfg
		Community   CommunityTableCfg
		Correlation CorrelationTableCfg
		Blocklist   BlocklistTableCfg
		Meta        MetaTableCfg
	}

	//LogTableCfg contains the configuration for logging
	LogTableCfg struct {
		LogTable string `default:"logs"`
	}

	//EventTableCfg contains the names of the event related collections
	EventTableCfg struct {
		EventTable           string `default:"events"`
		AttributeTable       string `default:"attributes"`
		ShadowAttributeTable string `default:"shadow_attributes"`
		SightingTable        string `default:"sightings"`
		ThreatLevelTable     string `default:"threat_levels"`
	}

	//GalaxyTableCfg contains the names of the galaxy collections
	GalaxyTableCfg struct {
		GalaxyTable        string `default:"galaxies"`
		GalaxyClusterTable string `default:"galaxy_clusters"`
	}

	//CommunityTableCfg contains the names of the collections describing
	//organisations, sharing groups and peer servers
	CommunityTableCfg struct {
		OrganisationTable string `default:"organisations"`
		SharingGroupTable string `default:"sharing_groups"`
		ServerTable       string `default:"servers"`
	}

	//CorrelationTableCfg contains the names of the correlation collections
	CorrelationTableCfg struct {
		CorrelationValueTable     string `default:"correlation_values"`
		CorrelationTable          string `default:"correlations"`
		OverCorrelatingValueTable string `default:"over_correlating_values"`
		ExclusionTable            string `default:"correlation_exclusions"`
	}

	//BlocklistTableCfg contains the names of the blocklist collections
	BlocklistTableCfg struct {
		EventBlocklistTable   string `default:"event_blocklists"`
		OrgBlocklistTable     string `default:"org_blocklists"`
		ClusterBlocklistTable string `default:"cluster_blocklists"`
	}

	//MetaTableCfg contains the bookkeeping collection names
	MetaTableCfg struct {
		SettingsTable string `default:"settings"`
		CountersTable string `default:"counters"`
	}
)
