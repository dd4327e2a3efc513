package kv

import (
	"fmt"
	"github.com/ValentinKolb/kvsys/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := util.ParseKeyArg(args[0])
			if err != nil {
				return err
			}
			value, ok, err := rpcStore.Get(key)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("key=%s, found=false\n", util.FormatKey(key, asHex()))
				return nil
			}
			fmt.Printf("key=%s, found=true, value=%s\n", util.FormatKey(key, asHex()), util.FormatValue(value, asHex()))
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := util.ParseKeyArg(args[0])
			if err != nil {
				return err
			}
			value, err := util.ParseValueArg(args[1])
			if err != nil {
				return err
			}
			if err := rpcStore.Put(key, value); err != nil {
				return err
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := util.ParseKeyArg(args[0])
			if err != nil {
				return err
			}
			n, err := rpcStore.Delete(key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, deleted=%d\n", util.FormatKey(key, asHex()), n)
			return nil
		},
	}
	scanCmd = &cobra.Command{
		Use:   "scan [low] [high]",
		Short: "Lists all key value pairs with low <= key < high",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			low, err := util.ParseKeyArg(args[0])
			if err != nil {
				return err
			}
			high, err := util.ParseKeyArg(args[1])
			if err != nil {
				return err
			}
			pairs, err := rpcStore.Scan(low, high)
			if err != nil {
				return err
			}
			for _, p := range pairs {
				fmt.Printf("%s\t%s\n", util.FormatKey(p.Key, asHex()), util.FormatValue(p.Value, asHex()))
			}
			fmt.Printf("(%d pairs)\n", len(pairs))
			return nil
		},
	}
)

func asHex() bool {
	return viper.GetBool("hex")
}
