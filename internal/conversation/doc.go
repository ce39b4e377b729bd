// Package conversation provides the in-memory conversation store.
//
// # Overview
//
// The Store owns every conversation for the lifetime of the process. Each
// user has at most one conversation, created on first contact:
//
//	store, err := conversation.NewStore(conversation.Options{
//		Mode:      conversation.ModeRemote,
//		Completer: client,
//	})
//	conv, created := store.CreateOrGetConversation("alice")
//
// # Turns
//
// A turn has two phases that callers drive explicitly:
//
//  1. AppendUserMessage records what the user said. The first user message
//     ever recorded becomes the title (50 characters, "..." when cut).
//  2. GenerateReply sends the latest user message to the completion client,
//     chained onto the conversation's PreviousResponseID, and appends the
//     reply.
//
// AddMessage routes both phases through one method using its isFromUser
// flag. In ModeDirect the assistant text is supplied by the caller instead.
//
// Remote failures never surface to the caller. They are logged, nothing is
// appended, and the chaining token is left as it was.
//
// # Locking
//
// Collection membership sits behind one RWMutex; get-or-create runs entirely
// under its write lock. Each conversation has its own mutex for appends and a
// turn gate that serializes reply generation. No mutex is held while waiting
// on the completion client.
//
// # Change Events
//
// Every real mutation publishes a ChangeEvent (created, deleted, appended)
// through a ChangeBroadcaster. Events are hints to re-fetch; slow
// subscribers may miss some.
package conversation
