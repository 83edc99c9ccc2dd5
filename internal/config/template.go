package config

// SoloTemplate is the solo.rb written by "solo-cook init" and printed as
// remediation guidance when knife[:solo_path] is missing or conflicts with
// file_cache_path.
const SoloTemplate = `knife[:solo_path] = "/tmp/chef-solo"

file_cache_path           "/tmp/chef-cache"
data_bag_path             "/tmp/chef-solo/data_bags"
encrypted_data_bag_secret "/tmp/chef-solo/data_bag_key"
cookbook_path             [ "/tmp/chef-solo/site-cookbooks",
                            "/tmp/chef-solo/cookbooks" ]
role_path                 "/tmp/chef-solo/roles"
`
