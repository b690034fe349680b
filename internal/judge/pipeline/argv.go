package pipeline

import (
	"github.com/google/shlex"

	appErr "fuzoj/pkg/errors"
)

// buildArgv assembles argv = split(command) ++ split(args), the literal
// rule from the Compile and Judge steps.
func buildArgv(command, args string) ([]string, error) {
	cmdFields, err := shlex.Split(command)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command failed")
	}
	if len(cmdFields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty")
	}
	if args == "" {
		return cmdFields, nil
	}
	argFields, err := shlex.Split(args)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse args failed")
	}
	return append(cmdFields, argFields...), nil
}
