// Command hotline runs the bilingual hotline voice and SMS webhook server.
//
// Subcommands:
//
//	serve      start the webhook server
//	log        print recent communication log records
//	normalize  show how a dialed number would be normalized
//
// Configuration comes from environment variables; see package config
package main
