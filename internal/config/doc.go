// Package config loads live.json, the project configuration read by the
// vango-live command.
//
// Every field is optional; missing fields take the defaults of New.
//
//	{
//	  "server": {
//	    "address": ":8080",
//	    "heartbeatInterval": "30s",
//	    "accessLog": true
//	  },
//	  "broker": {
//	    "allowClientState": false,
//	    "evalScripts": {"refresh": "location.reload()"}
//	  },
//	  "store": {"backend": "sqlite", "path": "live.sqlite3"},
//	  "log": {"level": "info", "format": "json"},
//	  "client": {"url": "ws://localhost:8080/components/ws", "maxQueue": 256}
//	}
//
// Durations are Go duration strings. Command-line flags override the file.
package config
