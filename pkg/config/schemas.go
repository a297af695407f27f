package config

// environmentSchema constrains CUE creation configs. User files are unified
// with #Environment, so unknown fields are rejected and defaults apply.
const environmentSchema = `
import "strings"

#Environment: {
	name:           =~"^[a-z](-?[a-z0-9])*$" & strings.MaxRunes(63)
	instance_name?: string

	ssh: {
		private_key_path: string & !=""
		public_key_path:  string & !=""
		username:         *"torrust" | (string & !="")
		port:             *22 | (int & >=1 & <=65535)
	}

	provider: #LXD | #Hetzner

	services?: {
		mysql?:          bool
		prometheus?:     bool
		grafana?:        bool
		http_api_port?:  int & >=1 & <=65535
		tracker_domain?: string
		grafana_domain?: string
		admin_email?:    string
	}

	labels?: [string]: string
}

#LXD: {
	kind: "lxd"
	lxd: profile_name: string & !=""
}

#Hetzner: {
	kind: "hetzner"
	hetzner: {
		api_token:   string & !=""
		server_type: *"cx22" | string
		location:    *"nbg1" | string
		image:       *"ubuntu-24.04" | string
	}
}
`
