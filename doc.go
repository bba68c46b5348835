// Package toxfilebot implements an unattended Tox-style bot that accepts files
// from its friends and stores them in a staging directory.
//
// The bot accepts every friend request it receives. Offers larger than the
// configured ceiling are refused with a friend message; every other offer is
// handed to a bounded transfer queue which keeps at most ActiveLimit transfers
// receiving at once and parks the rest until a slot frees up.
//
// # Getting Started
//
//	options := toxfilebot.NewOptions()
//	options.SaveFile = "filebot.save"
//	options.StagingDir = "incomplete"
//
//	bot, err := toxfilebot.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bot.Close()
//
//	fmt.Println("Bot address:", bot.Address())
//
//	go bot.RunConsole(ctx, os.Stdin, os.Stdout)
//	if err := bot.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Transfers
//
// Incoming transfers are owned by file.Manager, which serialises every queue
// mutation onto a single goroutine. A transfer is written to
// <StagingDir>/<file name> and the path is logged when the sender reports it
// finished. Transfers interrupted by a friend going offline are resumed from
// the number of bytes already received once the friend is heard from again.
//
// # Persistence
//
// When Options.SaveFile is set the secret key, nospam, name, status message
// and the friend list are written with msgpack every SaveInterval if anything
// changed, and once more when Run returns. A missing save file yields a fresh
// identity.
//
// # Console
//
// RunConsole reads line commands:
//
//	status <text>   set the status message
//	list            print every transfer in the queue
//	kill            stop the bot
package toxfilebot
